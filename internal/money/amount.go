// Package money 提供定点小数金额运算，保证成本累加与分组顺序无关
package money

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Scale 金额统一保留的小数位数
const Scale = 6

var (
	ctx     = decimalContext()
	million = apd.New(1, 6)
)

func decimalContext() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}

// Amount 不可变的十进制金额
type Amount struct {
	value apd.Decimal
}

// Zero 零值金额
func Zero() Amount {
	return Amount{}
}

// Parse 解析十进制字符串
func Parse(s string) (Amount, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{value: d}, nil
}

// FromFloat 以最短十进制表示转换浮点数，再量化到 Scale 位
// NaN/Inf 视为0
func FromFloat(v float64) Amount {
	return FromRate(v).Round()
}

// PerMillion 计算 count / 1e6 * rate，结果量化到 Scale 位
func PerMillion(count int64, rate float64) Amount {
	r := FromRate(rate)
	var out apd.Decimal
	_, _ = ctx.Mul(&out, apd.New(count, 0), &r.value)
	_, _ = ctx.Quo(&out, &out, million)
	return Amount{value: out}.Round()
}

// FromRate 费率不做量化（费率本身可能超过6位小数）
func FromRate(v float64) Amount {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}
	}
	a, err := Parse(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return Amount{}
	}
	return a
}

// Add 精确加法
func (a Amount) Add(b Amount) Amount {
	var out apd.Decimal
	_, _ = ctx.Add(&out, &a.value, &b.value)
	return Amount{value: out}
}

// Round 量化到 Scale 位（四舍五入）
func (a Amount) Round() Amount {
	var out apd.Decimal
	_, _ = ctx.Quantize(&out, &a.value, -Scale)
	return Amount{value: out}
}

// Div 除法，结果量化到 Scale 位；除数为0时返回0
func (a Amount) Div(n int64) Amount {
	if n == 0 {
		return Amount{}
	}
	var out apd.Decimal
	_, _ = ctx.Quo(&out, &a.value, apd.New(n, 0))
	return Amount{value: out}.Round()
}

func (a Amount) Cmp(b Amount) int {
	return a.value.Cmp(&b.value)
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// Float64 转为浮点（用于JSON输出）
func (a Amount) Float64() float64 {
	f, err := a.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

func (a Amount) String() string {
	return a.value.Text('f')
}
