package coff

import "errors"

// Validation errors. These are caused by bad input and go away once the
// caller fixes the input (shorter name, supported machine, ...).
var (
	ErrMalformedRecord    = errors.New("记录格式错误")
	ErrUnsupportedMachine = errors.New("不支持的机器类型")
	ErrNameTooLong        = errors.New("名称过长")
	ErrFieldOverflow      = errors.New("字段溢出")
	ErrInvalidName        = errors.New("名称无效")
)

// ErrUnresolvedSymbolOwner marks a broken builder invariant: a symbol whose
// owning member cannot be found. It is a bug, never an input problem.
var ErrUnresolvedSymbolOwner = errors.New("符号无法映射到成员")

// ErrLayoutMismatch means serialized output diverged from the computed layout.
var ErrLayoutMismatch = errors.New("输出与布局不一致")

// IsDefect reports whether err is an internal invariant violation rather
// than a validation failure the caller can repair.
func IsDefect(err error) bool {
	return errors.Is(err, ErrUnresolvedSymbolOwner) || errors.Is(err, ErrLayoutMismatch)
}
