package model

// 收支方向
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

func ValidType(t string) bool {
	return t == TypeIncome || t == TypeExpense
}
