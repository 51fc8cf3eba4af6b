// Package batch 批量估值：标量广播、形状解析与分片并行执行
package batch

// Array 只读浮点序列，长度为 1 的序列按标量广播
type Array interface {
	Len() int
	At(i int) float64
}

// Float64s 对 []float64 的零拷贝视图
type Float64s []float64

func (f Float64s) Len() int         { return len(f) }
func (f Float64s) At(i int) float64 { return f[i] }

// Scalar 长度为 1 的标量
type Scalar float64

func (s Scalar) Len() int       { return 1 }
func (s Scalar) At(int) float64 { return float64(s) }

// column 单字段的按下标访问器：标量直接返回，扁平缓冲区直接索引
type column struct {
	flat     []float64
	arr      Array
	scalar   float64
	isScalar bool
}

func newColumn(a Array, n int) column {
	if a.Len() == 1 && n != 1 {
		return column{scalar: a.At(0), isScalar: true}
	}
	switch v := a.(type) {
	case Float64s:
		return column{flat: v, arr: v}
	case Scalar:
		return column{scalar: float64(v), isScalar: true}
	}
	return column{arr: a}
}

func (c column) at(i int) float64 {
	if c.isScalar {
		return c.scalar
	}
	if c.flat != nil {
		return c.flat[i]
	}
	return c.arr.At(i)
}
