// Package catalog declares the typed data each module's activities read and
// write, and binds loaded module definitions to typed engines.
package catalog

import (
	"math"

	"github.com/p-n-ai/pai-course/internal/course"
)

// NoData is the schema of modules whose activities exchange no data.
type NoData struct {
	course.QuizLog
}

// Earning is the data collected by the earning module.
type Earning struct {
	course.QuizLog
	HourlyWage   float64 `json:"hourly_wage,omitempty"`
	HoursPerWeek float64 `json:"hours_per_week,omitempty"`
	GrossPay     float64 `json:"gross_pay,omitempty"`
	NetPay       float64 `json:"net_pay,omitempty"`
	CareerChoice string  `json:"career_choice,omitempty"`
	Reflection   string  `json:"reflection,omitempty"`
}

// Budgeting is the data collected by the budgeting module.
type Budgeting struct {
	course.QuizLog
	Needs         []string           `json:"needs,omitempty"`
	Wants         []string           `json:"wants,omitempty"`
	MonthlyIncome float64            `json:"monthly_income,omitempty"`
	Budget        map[string]float64 `json:"budget,omitempty"`
	Reflection    string             `json:"reflection,omitempty"`
}

// CartItem is one line of the shopping cart.
type CartItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Shopping is the data collected by the shopping module. The cart built in
// one activity is priced by the next.
type Shopping struct {
	course.QuizLog
	Cart     []CartItem `json:"cart,omitempty"`
	TaxRate  float64    `json:"tax_rate,omitempty"`
	Subtotal float64    `json:"subtotal,omitempty"`
	Total    float64    `json:"total,omitempty"`
	BestBuy  string     `json:"best_buy,omitempty"`
}

// Saving is the data collected by the saving module.
type Saving struct {
	course.QuizLog
	GoalName       string  `json:"goal_name,omitempty"`
	GoalAmount     float64 `json:"goal_amount,omitempty"`
	MonthlyDeposit float64 `json:"monthly_deposit,omitempty"`
	InterestRate   float64 `json:"interest_rate,omitempty"`
	InterestEarned float64 `json:"interest_earned,omitempty"`
}

// Credit is the data collected by the credit module.
type Credit struct {
	course.QuizLog
	ScoreFactors []string `json:"score_factors,omitempty"`
	LoanAmount   float64  `json:"loan_amount,omitempty"`
	APR          float64  `json:"apr,omitempty"`
	LoanMonths   int      `json:"loan_months,omitempty"`
	TotalPaid    float64  `json:"total_paid,omitempty"`
	Reflection   string   `json:"reflection,omitempty"`
}

// FinalCheck is the data collected by the final knowledge check.
type FinalCheck struct {
	course.QuizLog
	MoneyPlan string `json:"money_plan,omitempty"`
}

// PaycheckInput is what the career matcher shows next to each career.
type PaycheckInput struct {
	GrossPay float64 `json:"gross_pay"`
	NetPay   float64 `json:"net_pay"`
}

// BudgetInput seeds the budget builder with the sorted needs and wants.
type BudgetInput struct {
	Needs []string `json:"needs"`
	Wants []string `json:"wants"`
}

// TaxInput is the cart the tax calculator prices.
type TaxInput struct {
	Cart     []CartItem `json:"cart"`
	Subtotal float64    `json:"subtotal"`
}

// PlanInput is the goal the deposit planner works toward.
type PlanInput struct {
	GoalName   string  `json:"goal_name"`
	GoalAmount float64 `json:"goal_amount"`
}

// InterestInput feeds the interest calculator with the learner's plan.
type InterestInput struct {
	GoalAmount     float64 `json:"goal_amount"`
	MonthlyDeposit float64 `json:"monthly_deposit"`
	MonthsToGoal   int     `json:"months_to_goal"`
}

// Subtotal prices a cart before tax.
func Subtotal(cart []CartItem) float64 {
	var sum float64
	for _, it := range cart {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		sum += it.Price * float64(qty)
	}
	return math.Round(sum*100) / 100
}

// MonthsToGoal returns how many monthly deposits reach goal, or 0 when the
// deposit is not positive.
func MonthsToGoal(goal, deposit float64) int {
	if deposit <= 0 || goal <= 0 {
		return 0
	}
	return int(math.Ceil(goal / deposit))
}

func earningActivities() map[string]course.Activity[Earning] {
	return map[string]course.Activity[Earning]{
		"career-match": course.ActivityFunc[Earning](func(d Earning) any {
			return PaycheckInput{GrossPay: d.GrossPay, NetPay: d.NetPay}
		}),
	}
}

func budgetingActivities() map[string]course.Activity[Budgeting] {
	return map[string]course.Activity[Budgeting]{
		"build-budget": course.ActivityFunc[Budgeting](func(d Budgeting) any {
			return BudgetInput{Needs: nonNil(d.Needs), Wants: nonNil(d.Wants)}
		}),
	}
}

func shoppingActivities() map[string]course.Activity[Shopping] {
	return map[string]course.Activity[Shopping]{
		"tax": course.ActivityFunc[Shopping](func(d Shopping) any {
			cart := d.Cart
			if cart == nil {
				cart = []CartItem{}
			}
			return TaxInput{Cart: cart, Subtotal: Subtotal(cart)}
		}),
	}
}

func savingActivities() map[string]course.Activity[Saving] {
	return map[string]course.Activity[Saving]{
		"plan": course.ActivityFunc[Saving](func(d Saving) any {
			return PlanInput{GoalName: d.GoalName, GoalAmount: d.GoalAmount}
		}),
		"interest": course.ActivityFunc[Saving](func(d Saving) any {
			return InterestInput{
				GoalAmount:     d.GoalAmount,
				MonthlyDeposit: d.MonthlyDeposit,
				MonthsToGoal:   MonthsToGoal(d.GoalAmount, d.MonthlyDeposit),
			}
		}),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
