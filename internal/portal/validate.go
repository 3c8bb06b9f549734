package portal

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/welfarecanteen/portal/internal/domain"
	"github.com/welfarecanteen/portal/internal/lifecycle"
)

const itemDateLayout = "02-01-2006"

// validateItem mirrors the add/edit item form rules. The item name is fixed
// at creation and must not be sent on update.
func validateItem(item domain.Item, create bool) string {
	if create && strings.TrimSpace(item.Name) == "" {
		return "item name is required"
	}
	if !create && strings.TrimSpace(item.Name) != "" {
		return "item name cannot be changed"
	}
	if strings.TrimSpace(item.Description) == "" {
		return "description is required"
	}
	if item.Quantity < 1 {
		return "quantity must be at least 1"
	}
	if strings.TrimSpace(item.QuantityUnit) == "" {
		return "quantity unit is required"
	}
	if !item.Price.GreaterThan(decimal.Zero) {
		return "price must be greater than zero"
	}
	if strings.TrimSpace(item.ImageURL) == "" {
		return "image url is required"
	}

	var start, end time.Time
	var err error
	if item.StartDate != "" {
		if start, err = time.Parse(itemDateLayout, item.StartDate); err != nil {
			return "invalid start date, expected dd-mm-yyyy"
		}
	}
	if item.EndDate != "" {
		if end, err = time.Parse(itemDateLayout, item.EndDate); err != nil {
			return "invalid end date, expected dd-mm-yyyy"
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return "end date must not be before start date"
	}

	return ""
}

// validateCanteen mirrors the add/edit canteen form rules. Name and code are
// fixed at creation.
func validateCanteen(canteen domain.Canteen, create bool) string {
	if create {
		if strings.TrimSpace(canteen.Name) == "" {
			return "canteen name is required"
		}
		if strings.TrimSpace(canteen.Code) == "" {
			return "canteen code is required"
		}
	}
	if strings.TrimSpace(canteen.Contact.FirstName) == "" {
		return "contact first name is required"
	}
	if strings.TrimSpace(canteen.Contact.LastName) == "" {
		return "contact last name is required"
	}
	if !strings.Contains(canteen.Contact.Email, "@") {
		return "a valid contact email is required"
	}
	if !validMobile(canteen.Contact.Mobile) {
		return "a valid 10-digit contact mobile is required"
	}
	if strings.TrimSpace(canteen.ImageURL) == "" {
		return "canteen image url is required"
	}
	return ""
}

func validMobile(mobile string) bool {
	if len(mobile) != 10 {
		return false
	}
	for _, r := range mobile {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cancelStatus(result lifecycle.Result) int {
	switch result.Outcome {
	case lifecycle.OutcomeRejected:
		return http.StatusConflict
	case lifecycle.OutcomeFailed:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}
