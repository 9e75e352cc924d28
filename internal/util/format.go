package util

import (
	"math"
	"strconv"
	"strings"
)

// FormatCost 智利格式金额：点分千位、逗号小数，保留4位
// 例：1234.56789 -> "$1.234,5679"
func FormatCost(cost float64) string {
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		cost = 0
	}
	s := strconv.FormatFloat(cost, 'f', 4, 64)
	intPart, decPart, _ := strings.Cut(s, ".")
	return "$" + groupThousands(intPart) + "," + decPart
}

// FormatNumber 智利格式整数：1234567 -> "1.234.567"
func FormatNumber(n int64) string {
	return groupThousands(strconv.FormatInt(n, 10))
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}

	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3 + 1)
	b.WriteString(sign)
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > len(sign) {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
