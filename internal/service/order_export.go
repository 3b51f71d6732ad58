package service

import (
	"context"
	"fmt"
	"io"

	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/tealeg/xlsx"
)

var exportHeaders = []string{
	"Order Number", "Order ID", "Created", "Customer ID", "Customer", "Email", "Status",
	"Payment Status", "Payment Method", "Shipping Method", "Items", "Subtotal",
	"Shipping", "Tax", "Total", "Ship To",
}

// Export writes the orders matching filter as an xlsx workbook
func (s *OrderService) Export(ctx context.Context, filter store.OrderFilter, w io.Writer) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Export")
	defer span.End()

	orders, err := s.List(ctx, filter)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}

	emails := map[int64]string{}
	for _, o := range orders {
		email, ok := emails[o.UserID]
		if !ok {
			if user, err := s.store.GetUserByID(ctx, o.UserID); err == nil {
				email = user.Email
			}
			emails[o.UserID] = email
		}

		lines, err := s.store.GetOrderLines(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("failed to load lines of order %s: %w", o.OrderNumber, err)
		}
		items := 0
		for _, l := range lines {
			items += l.Quantity
		}

		row := sheet.AddRow()
		row.AddCell().SetString(o.OrderNumber)
		row.AddCell().SetString(o.ID)
		row.AddCell().SetString(o.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetInt64(o.UserID)
		row.AddCell().SetString(o.Billing.FullName())
		row.AddCell().SetString(email)
		row.AddCell().SetString(o.Status.Display())
		row.AddCell().SetString(string(o.PaymentStatus))
		row.AddCell().SetString(o.PaymentMethod)
		row.AddCell().SetString(o.ShippingMethodName)
		row.AddCell().SetInt(items)
		for _, amount := range []string{
			o.Subtotal.StringFixed(2), o.ShippingCost.StringFixed(2),
			o.TaxAmount.StringFixed(2), o.TotalAmount.StringFixed(2),
		} {
			row.AddCell().SetString(amount)
		}
		row.AddCell().SetString(o.Shipping.OneLine())
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
