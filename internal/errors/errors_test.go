package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	// 测试基本错误创建
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 测试带详情的错误
	err = New(ErrResourceMalformed, "GPIB::abc::INSTR")
	suite.NotNil(err)
	suite.Equal(ErrResourceMalformed, err.Code)
	suite.Equal("资源地址格式错误", err.Message)
	suite.Equal("GPIB::abc::INSTR", err.Details)

	// 测试多个详情
	err = New(ErrConnectionOpen, "打开失败", "资源: /dev/ttyUSB0", "权限不足")
	suite.Equal("打开失败; 资源: /dev/ttyUSB0; 权限不足", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrValueOutOfRange, "属性 %s 的值 %g 超出范围", "period", 1.5)
	suite.NotNil(err)
	suite.Equal(ErrValueOutOfRange, err.Code)
	suite.Equal("属性 period 的值 1.5 超出范围", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	// 包装标准错误
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrConnectionRead)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrConnectionRead, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// 包装nil错误
	nilErr := Wrap(nil, ErrUnknown)
	suite.Nil(nilErr)

	// 包装已有的AppError
	appErr := New(ErrResourceMalformed, "缺少INSTR后缀")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrResourceMalformed, wrappedAppErr.Code) // 保留原始错误码
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrConnectionOpen, "资源 %s 打开失败", "ASRL/dev/ttyUSB0::INSTR")
	suite.NotNil(wrappedErr)
	suite.Equal(ErrConnectionOpen, wrappedErr.Code)
	suite.Equal("资源 ASRL/dev/ttyUSB0::INSTR 打开失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrInstrumentOffline)
	suite.True(Is(err, ErrInstrumentOffline))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrInstrumentOffline))

	stdErr := errors.New("标准错误")
	suite.False(Is(stdErr, ErrInstrumentOffline))
}

// 测试连接错误判断
func (suite *ErrorsTestSuite) TestIsConnectionError() {
	suite.True(IsConnectionError(New(ErrConnectionOpen)))
	suite.True(IsConnectionError(New(ErrResourceMalformed)))
	suite.False(IsConnectionError(New(ErrValueOutOfRange)))
	suite.False(IsConnectionError(nil))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	err := New(ErrCommandFailed)
	suite.Equal(ErrCommandFailed, GetCode(err))
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	suite.Equal(400, New(ErrInvalidParam).HTTPStatus())
	suite.Equal(400, New(ErrValueOutOfRange).HTTPStatus())
	suite.Equal(404, New(ErrNotFound).HTTPStatus())
	suite.Equal(401, New(ErrTokenExpired).HTTPStatus())
	suite.Equal(503, New(ErrInstrumentOffline).HTTPStatus())
	suite.Equal(503, New(ErrDatabaseConnect).HTTPStatus())
	suite.Equal(500, New(ErrConnectionOpen).HTTPStatus())
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrConnectionTimeout)))
	suite.True(IsRetryable(New(ErrInstrumentBusy)))
	suite.False(IsRetryable(New(ErrResourceMalformed)))
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrConnectionOpen)))
	suite.True(IsCritical(New(ErrConfigLoad)))
	suite.False(IsCritical(New(ErrConnectionRead)))
	suite.False(IsCritical(nil))
}

// 测试错误链
func (suite *ErrorsTestSuite) TestUnwrap() {
	cause := errors.New("底层错误")
	err := New(ErrConnectionWrite).WithCause(cause)
	suite.Equal(cause, errors.Unwrap(err))
	suite.True(errors.Is(err, cause))
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestNewErrorResponse() {
	err := New(ErrInstrumentOffline)
	resp := NewErrorResponse(err, "req-123")
	suite.False(resp.Success)
	suite.Equal(err, resp.Error)
	suite.Equal("req-123", resp.RequestID)
	suite.NotZero(resp.Timestamp)
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
