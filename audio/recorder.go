package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

var _ Microphone = (*malgoMicrophone)(nil)

// malgoMicrophone 使用 malgo 采集 F32 格式的麦克风数据
type malgoMicrophone struct {
	logger *slog.Logger

	mu      sync.Mutex
	context *malgo.AllocatedContext
	device  *malgo.Device
}

func NewMalgoMicrophone(logger *slog.Logger) Microphone {
	return &malgoMicrophone{logger: logger}
}

func (m *malgoMicrophone) Open(cfg MicConfig, onData func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("%w: microphone already open", ErrDeviceUnavailable)
	}

	// 初始化malgo上下文
	ctxMalgo, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize audio context: %v", ErrDeviceUnavailable, err)
	}

	// 创建设备配置
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodSize)

	captureCallback := func(_, input []byte, _ uint32) {
		onData(bytesToFloat32(input))
	}

	device, err := malgo.InitDevice(ctxMalgo.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: captureCallback,
	})
	if err != nil {
		freeContext(ctxMalgo)
		return classifyDeviceError("failed to initialize capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(ctxMalgo)
		return classifyDeviceError("failed to start capture device", err)
	}

	m.context = ctxMalgo
	m.device = device
	m.logger.Info("Microphone opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_size", cfg.PeriodSize)
	return nil
}

func (m *malgoMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}

	var errs []error
	if err := m.device.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop capture device: %w", err))
	}
	m.device.Uninit()
	freeContext(m.context)

	m.device = nil
	m.context = nil
	m.logger.Info("Microphone closed")
	return errors.Join(errs...)
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// classifyDeviceError 区分权限被拒与设备不可用
func classifyDeviceError(msg string, err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "permission") || strings.Contains(lower, "access denied") {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, msg, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, msg, err)
}
