package fixtures

import (
	"time"

	"github.com/nimasrn/cash-ledger/internal/model"
)

const TestTokenSecret = "test-token-secret"

// DueMarch is the due date shared by the fixture periods.
var DueMarch = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

var TestPeriodMarch = model.Period{
	Name:          "March 2024",
	Amount:        50000,
	LateFeePerDay: 2000,
	DueDate:       DueMarch,
	IsActive:      true,
}

// TreasurerIdentity manages cash without holding the admin role.
var TreasurerIdentity = model.Identity{
	Name:        "treasurer",
	Permissions: []string{model.PermissionCashManage},
}

// PNGHeader is enough for content sniffing to report image/png.
var PNGHeader = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}

var InvalidPaymentMethods = []string{"", "CHEQUE", "CARD"}
