package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidDomain 参数超出定义域（非正价格、负期限/波动率、非有限值）
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrShapeMismatch 批量输入长度不兼容
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrConvergenceFailure 隐含波动率未收敛
	ErrConvergenceFailure = errors.New("did not converge")

	ErrUnknownOptionType = errors.New("unknown option type")
	ErrUnknownModel      = errors.New("unknown pricing model")
)

// InvalidDomainError 定义域错误，Index 为批量中的元素下标（单笔调用为 -1）
type InvalidDomainError struct {
	Field  string
	Value  float64
	Reason string
	Index  int
}

func (e *InvalidDomainError) Error() string {
	var b strings.Builder
	b.WriteString("invalid domain: ")
	b.WriteString(e.Field)
	b.WriteString(" = ")
	b.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " at index %d", e.Index)
	}
	return b.String()
}

func (e *InvalidDomainError) Unwrap() error { return ErrInvalidDomain }

// ShapeMismatchError 批量长度冲突
type ShapeMismatchError struct {
	Fields  []string
	Lengths []int
}

func (e *ShapeMismatchError) Error() string {
	parts := make([]string, len(e.Lengths))
	for i, n := range e.Lengths {
		if i < len(e.Fields) {
			parts[i] = fmt.Sprintf("%s=%d", e.Fields[i], n)
		} else {
			parts[i] = strconv.Itoa(n)
		}
	}
	return "shape mismatch: incompatible lengths " + strings.Join(parts, ", ")
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// ConvergenceError 求解失败
type ConvergenceError struct {
	Iterations int
	Sigma      float64
	Residual   float64
	Reason     string
	Index      int
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("implied volatility did not converge after %d iterations (sigma=%g, residual=%g)", e.Iterations, e.Sigma, e.Residual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	return msg
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergenceFailure }
