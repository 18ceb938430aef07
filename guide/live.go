package guide

import (
	"fmt"
	"math"
	"strings"

	"github.com/lisuiheng/zenflow-go/core"
)

const (
	// PlanToolName 是规划会话中模型用来提交计划的函数
	PlanToolName = "setMeditationTopic"

	// DefaultDuration 计划未给出时长时使用，单位分钟
	DefaultDuration = 5

	planAcknowledgement = "Topic saved. You can now tell the user the plan is ready."

	plannerInstructions = "You are a ZenFlow Meditation Planner. Help the user define their meditation topic, " +
		"style, and duration through a friendly conversation. Use a calm and soothing voice. " +
		"When you have enough information to form a great meditation prompt, " +
		"call the setMeditationTopic function to finalize the plan."

	guideInstructionsTemplate = `You are a professional meditation guide. Your tone should be slow and peaceful.

BASE SCRIPT:
"""
%s
"""

RULES:
1. Speak slowly with intentional pauses.
2. If the user interacts, gently guide them back to the meditation flow.
3. Your tone is warm and grounded.`
)

func planTool() core.ToolDeclaration {
	styles := make([]any, len(Styles))
	for i, s := range Styles {
		styles[i] = string(s)
	}
	return core.ToolDeclaration{
		Name:        PlanToolName,
		Description: "Finalize the meditation session plan based on the conversation.",
		Parameters: map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "STRING",
					"description": "A concise and descriptive topic for the meditation.",
				},
				"style": map[string]any{
					"type":        "STRING",
					"enum":        styles,
					"description": "The suggested style.",
				},
				"duration": map[string]any{
					"type":        "NUMBER",
					"description": "Suggested duration in minutes.",
				},
			},
			"required": []any{"topic"},
		},
	}
}

// PlannerSession 返回规划会话的配置：通过对话确定主题，最后调用 setMeditationTopic
func PlannerSession(voice string) core.SessionConfig {
	return core.SessionConfig{
		Voice:        voice,
		Instructions: plannerInstructions,
		Tools:        []core.ToolDeclaration{planTool()},
		ToolResult:   planAcknowledgement,
	}
}

// GuideSession 返回按给定引导稿实时带领冥想的会话配置
func GuideSession(script, voice string) core.SessionConfig {
	return core.SessionConfig{
		Voice:        voice,
		Instructions: fmt.Sprintf(guideInstructionsTemplate, script),
	}
}

// PlanFromArgs 解析 setMeditationTopic 的参数。缺省风格为 Calm，缺省时长为 5 分钟
func PlanFromArgs(args map[string]any) (Plan, error) {
	topic, _ := args["topic"].(string)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Plan{}, fmt.Errorf("%w: topic is required", ErrInvalidPlan)
	}
	plan := Plan{Topic: topic, Style: StyleCalm, Duration: DefaultDuration}

	if raw, ok := args["style"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return Plan{}, fmt.Errorf("%w: style must be a string, got %T", ErrInvalidPlan, raw)
		}
		if s != "" {
			style, err := ParseStyle(s)
			if err != nil {
				return Plan{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
			}
			plan.Style = style
		}
	}

	if raw, ok := args["duration"]; ok && raw != nil {
		d, ok := raw.(float64)
		if !ok || math.IsNaN(d) || math.IsInf(d, 0) {
			return Plan{}, fmt.Errorf("%w: duration must be a number, got %v", ErrInvalidPlan, raw)
		}
		if minutes := int(math.Round(d)); minutes > 0 {
			plan.Duration = minutes
		}
	}
	return plan, nil
}

// Params 把计划转换为生成参数
func (p Plan) Params(language string) GenerationParams {
	return GenerationParams{
		Topic:    p.Topic,
		Language: language,
		Style:    string(p.Style),
		Duration: p.Duration,
	}
}
