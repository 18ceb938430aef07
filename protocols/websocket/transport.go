// protocols/websocket/transport.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/zenflow-go/pkg/interfaces"
)

var _ interfaces.TransportProtocol = (*WSProtocol)(nil)

const (
	closeWriteTimeout   = time.Second
	defaultWriteTimeout = 10 * time.Second
)

// conn 受 mu 保护，writeMu 只串行化数据帧写入；Close 不等待写入
type WSProtocol struct {
	conn      *websocket.Conn
	config    Config
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	writeMu   sync.Mutex

	errMu sync.Mutex
	err   error
}

// Config 定义websocket特有的配置
type Config struct {
	URL    string
	Header http.Header
	// HandshakeTimeout 为 0 时使用 gorilla 默认值
	HandshakeTimeout time.Duration
	// WriteTimeout 单次写入的超时，为 0 时使用 10s
	WriteTimeout time.Duration
}

func NewWebSocketProtocol(config Config) (*WSProtocol, error) {
	if config.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	return &WSProtocol{
		config:    config,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}, nil
}

func (p *WSProtocol) Connect(ctx context.Context) error {
	if p.connection() != nil {
		return errors.New("websocket already connected")
	}

	dialer := *websocket.DefaultDialer
	if p.config.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = p.config.HandshakeTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, p.config.URL, p.config.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %v (status %d)", interfaces.ErrConnectionFailed, err, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}

	p.mu.Lock()
	select {
	case <-p.closeChan:
		// 握手期间已被关闭，读循环不会启动
		p.mu.Unlock()
		_ = conn.Close()
		close(p.msgChan)
		return interfaces.ErrConnectionClosed
	default:
	}
	if p.conn != nil {
		p.mu.Unlock()
		_ = conn.Close()
		return errors.New("websocket already connected")
	}
	p.conn = conn
	p.mu.Unlock()

	go p.readPump(conn)
	return nil
}

func (p *WSProtocol) connection() *websocket.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *WSProtocol) readPump(conn *websocket.Conn) {
	defer close(p.msgChan)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-p.closeChan:
				// 本地关闭导致的读错误不算异常
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					p.setErr(err)
				}
			}
			return
		}

		select {
		case p.msgChan <- interfaces.Message{Payload: data, Type: convertMsgType(msgType)}:
		case <-p.closeChan:
			return
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

func (p *WSProtocol) Send(data []byte, msgType interfaces.MessageType) error {
	conn := p.connection()
	if conn == nil {
		return interfaces.ErrConnectionFailed
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.closeChan:
		return interfaces.ErrConnectionClosed
	default:
	}

	wsType := websocket.TextMessage
	if msgType == interfaces.MsgBinary {
		wsType = websocket.BinaryMessage
	}
	timeout := p.config.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return conn.WriteMessage(wsType, data)
}

func (p *WSProtocol) Receive() <-chan interfaces.Message {
	return p.msgChan
}

func (p *WSProtocol) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *WSProtocol) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *WSProtocol) ProtocolType() string { return "websocket" }

// Close 可重复调用，不等待阻塞中的 Send；WriteControl 和 Close 可以与写入并发
func (p *WSProtocol) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.closeChan)
		conn := p.conn
		p.mu.Unlock()

		if conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		err = conn.Close()
	})
	return err
}
