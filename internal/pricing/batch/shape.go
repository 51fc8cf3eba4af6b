package batch

import (
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// Field 命名的批量输入字段
type Field struct {
	Name string
	Data Array
}

// Shape 形状解析结果
type Shape struct {
	Len int
	// FastPath 所有字段长度均等于 Len，无需广播
	FastPath bool
}

// Resolve 解析批量长度：非标量字段长度必须一致，全部为标量时长度为 1
func Resolve(fields ...Field) (Shape, error) {
	n := -1
	conflict := false
	for _, f := range fields {
		l := f.Data.Len()
		if l == 1 {
			continue
		}
		if n == -1 {
			n = l
		} else if l != n {
			conflict = true
		}
	}
	if conflict {
		mismatch := &domain.ShapeMismatchError{}
		for _, f := range fields {
			if l := f.Data.Len(); l != 1 {
				mismatch.Fields = append(mismatch.Fields, f.Name)
				mismatch.Lengths = append(mismatch.Lengths, l)
			}
		}
		return Shape{}, mismatch
	}
	if n == -1 {
		n = 1
	}

	shape := Shape{Len: n, FastPath: true}
	for _, f := range fields {
		if f.Data.Len() != n {
			shape.FastPath = false
			break
		}
	}
	return shape, nil
}
