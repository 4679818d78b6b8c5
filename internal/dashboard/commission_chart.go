package dashboard

import (
	"fmt"
	"time"

	"ebd-backend/internal/auth"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CommissionChartPoint struct {
	Label      string  `json:"label"` // dia / início da semana / início do mês
	Paid       float64 `json:"paid"`
	Outstand   float64 `json:"outstanding"`
	Commission float64 `json:"commission"`
	Total      float64 `json:"total"`
}

type CommissionChartTotals struct {
	Paid       float64 `json:"paid"`
	Outstand   float64 `json:"outstanding"`
	Commission float64 `json:"commission"`
	Total      float64 `json:"total"`
}

type CommissionChartResponse struct {
	VendorID    uint                   `json:"vendor_id"`
	Period      string                 `json:"period"` // daily | weekly | monthly
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Points      []CommissionChartPoint `json:"points"`
	GrandTotals CommissionChartTotals  `json:"grand_totals"`
}

// resolve o vendedor do contexto (vendedor pelo JWT, escritório pelo query
// param). Para admin/financeiro ?vendor_id=1 é obrigatório.
func getVendorIDFromContext(c *fiber.Ctx) (uint, error) {
	roleVal := c.Locals(auth.CtxUserRoleKey)
	role, ok := roleVal.(models.UserRole)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "Não foi possível identificar o perfil do usuário")
	}

	if role == models.RoleVendedor {
		vendorIDVal := c.Locals(auth.CtxVendorIDKey)
		vendorIDPtr, ok := vendorIDVal.(*uint)
		if !ok || vendorIDPtr == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "Vendedor sem cadastro vinculado")
		}
		return *vendorIDPtr, nil
	}

	// admin / financeiro
	vidStr := c.Query("vendor_id")
	if vidStr == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "vendor_id é obrigatório")
	}
	var vid uint
	if _, err := fmt.Sscan(vidStr, &vid); err != nil || vid == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "vendor_id inválido")
	}
	return vid, nil
}

// GET /api/dashboard/commission-chart?period=monthly&count=12&vendor_id=1
// Agrega por vencimento: valor de face pago x em aberto e a comissão do
// vendedor por balde de tempo.
func CommissionChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vendorID, err := getVendorIDFromContext(c)
		if err != nil {
			return err
		}

		period := c.Query("period", "monthly") // daily | weekly | monthly
		countStr := c.Query("count", "")

		var count int
		if countStr == "" {
			switch period {
			case "daily":
				count = 30
			case "weekly":
				count = 8
			default:
				period = "monthly"
				count = 12
			}
		} else {
			if _, err := fmt.Sscan(countStr, &count); err != nil || count <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "count inválido")
			}
		}

		now := time.Now()
		loc := now.Location()
		end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		var start time.Time

		switch period {
		case "daily":
			start = end.AddDate(0, 0, -(count - 1))
		case "weekly":
			days := 7 * (count - 1)
			start = end.AddDate(0, 0, -days)
		default: // monthly
			end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
			start = end.AddDate(0, -(count - 1), 0)
			end = start.AddDate(0, count, 0).AddDate(0, 0, -1)
		}

		// estrutura das linhas da agregação
		type row struct {
			Bucket     time.Time `gorm:"column:bucket"`
			Status     string    `gorm:"column:status"`
			Face       float64   `gorm:"column:face"`
			Commission float64   `gorm:"column:commission"`
		}
		var rows []row

		var trunc string
		switch period {
		case "daily":
			trunc = "due_date::date"
		case "weekly":
			trunc = "date_trunc('week', due_date)::date"
		default:
			trunc = "date_trunc('month', due_date)::date"
		}

		sql := fmt.Sprintf(`
			SELECT %s AS bucket,
				   status,
				   SUM(face_value) AS face,
				   SUM(commission_value) AS commission
			FROM commission_installments
			WHERE vendor_id = ? AND due_date >= ? AND due_date <= ?
			GROUP BY bucket, status
			ORDER BY bucket ASC;
		`, trunc)

		if err := database.DB.Raw(sql, vendorID, start, end).Scan(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível agregar as comissões")
		}

		type bucketAgg struct {
			Bucket     time.Time
			Paid       float64
			Outstand   float64
			Commission float64
			Total      float64
		}

		buckets := make(map[time.Time]*bucketAgg)

		for _, r := range rows {
			agg, ok := buckets[r.Bucket]
			if !ok {
				agg = &bucketAgg{Bucket: r.Bucket}
				buckets[r.Bucket] = agg
			}

			if r.Status == string(models.InstallmentPaid) {
				agg.Paid += r.Face
			} else {
				agg.Outstand += r.Face
			}
			agg.Commission += r.Commission
		}

		ordered := make([]bucketAgg, 0, len(buckets))
		for _, v := range buckets {
			v.Total = v.Paid + v.Outstand
			ordered = append(ordered, *v)
		}

		// ordenação por data
		for i := 0; i < len(ordered); i++ {
			for j := i + 1; j < len(ordered); j++ {
				if ordered[j].Bucket.Before(ordered[i].Bucket) {
					ordered[i], ordered[j] = ordered[j], ordered[i]
				}
			}
		}

		points := make([]CommissionChartPoint, 0, len(ordered))
		grand := CommissionChartTotals{}

		for _, b := range ordered {
			points = append(points, CommissionChartPoint{
				Label:      b.Bucket.Format("2006-01-02"),
				Paid:       b.Paid,
				Outstand:   b.Outstand,
				Commission: b.Commission,
				Total:      b.Total,
			})

			grand.Paid += b.Paid
			grand.Outstand += b.Outstand
			grand.Commission += b.Commission
			grand.Total += b.Total
		}

		resp := CommissionChartResponse{
			VendorID:    vendorID,
			Period:      period,
			From:        start.Format("2006-01-02"),
			To:          end.Format("2006-01-02"),
			Points:      points,
			GrandTotals: grand,
		}

		return c.JSON(resp)
	}
}
