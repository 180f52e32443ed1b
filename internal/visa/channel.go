package visa

import (
	"bytes"
	stderrors "errors"
	"io"
	"net"
	"time"

	"github.com/wfunc/pulse-server/internal/errors"
)

// 读写均以换行符结尾，与仪器侧的终止符设置一致
const termination = '\n'

// Channel 仪器通信通道
// 通道独占底层OS资源，Close后必须可以用相同地址重新Open。
type Channel interface {
	io.ReadWriteCloser

	// WriteString 写入一条命令并附加终止符
	WriteString(s string) error

	// ReadString 读取一行响应（不含终止符）
	ReadString() (string, error)

	// Query 写入命令并读取响应
	Query(cmd string) (string, error)

	// Resource 返回通道对应的连接目标
	Resource() *Resource
}

// rawChannel 在任意ReadWriteCloser上实现按行收发
type rawChannel struct {
	rw          io.ReadWriteCloser
	res         *Resource
	readTimeout time.Duration
	buf         bytes.Buffer

	// 串口读超时返回EOF表示暂无数据，TCP的EOF则表示对端已关闭
	eofIsClosed bool
}

func newRawChannel(rw io.ReadWriteCloser, res *Resource, readTimeout time.Duration) *rawChannel {
	return &rawChannel{rw: rw, res: res, readTimeout: readTimeout}
}

func (c *rawChannel) Read(p []byte) (int, error) {
	return c.rw.Read(p)
}

func (c *rawChannel) Write(p []byte) (int, error) {
	return c.rw.Write(p)
}

func (c *rawChannel) Close() error {
	return c.rw.Close()
}

func (c *rawChannel) Resource() *Resource {
	return c.res
}

// WriteString 写入一条命令并附加终止符
func (c *rawChannel) WriteString(s string) error {
	if _, err := c.rw.Write(append([]byte(s), termination)); err != nil {
		return errors.Wrapf(err, errors.ErrConnectionWrite, "写入命令失败: %s", s)
	}
	return nil
}

// ReadString 读取一行响应
// 底层读在超时时返回零字节，这里以总时间预算轮询直到读到终止符。
func (c *rawChannel) ReadString() (string, error) {
	deadline := time.Now().Add(c.readTimeout)
	one := make([]byte, 64)

	for {
		// 先消费缓冲中已有的整行
		if line, ok := c.takeLine(); ok {
			return line, nil
		}

		if time.Now().After(deadline) {
			return "", errors.Newf(errors.ErrConnectionTimeout,
				"等待响应超时 (%v)", c.readTimeout)
		}

		n, err := c.rw.Read(one)
		if n > 0 {
			c.buf.Write(one[:n])
			continue
		}
		if err != nil {
			if err != io.EOF {
				return "", errors.Wrap(err, errors.ErrConnectionRead)
			}
			if c.eofIsClosed {
				return "", errors.New(errors.ErrConnectionClosed, "连接已被对端关闭")
			}
		}
	}
}

// takeLine 从缓冲中取出一行（去掉终止符和回车）
func (c *rawChannel) takeLine() (string, bool) {
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, termination)
	if idx < 0 {
		return "", false
	}

	line := string(bytes.TrimRight(data[:idx], "\r"))
	c.buf.Next(idx + 1)
	return line, true
}

// Query 写入命令并读取响应
func (c *rawChannel) Query(cmd string) (string, error) {
	if err := c.WriteString(cmd); err != nil {
		return "", err
	}
	return c.ReadString()
}

// tcpChannel TCPIP::SOCKET资源的通道，读超时通过连接deadline实现
type tcpChannel struct {
	rawChannel
	conn net.Conn
}

func newTCPChannel(conn net.Conn, res *Resource, readTimeout time.Duration) *tcpChannel {
	ch := &tcpChannel{conn: conn}
	ch.rawChannel = *newRawChannel(conn, res, readTimeout)
	ch.eofIsClosed = true
	return ch
}

func (c *tcpChannel) ReadString() (string, error) {
	// deadline由rawChannel的时间预算控制，这里只保证Read不会永久阻塞
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	line, err := c.rawChannel.ReadString()
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return "", errors.Newf(errors.ErrConnectionTimeout,
				"等待响应超时 (%v)", c.readTimeout)
		}
		return "", err
	}
	return line, nil
}

func (c *tcpChannel) Query(cmd string) (string, error) {
	if err := c.WriteString(cmd); err != nil {
		return "", err
	}
	return c.ReadString()
}
