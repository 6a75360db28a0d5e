package domain

// Fold builds a line map from raw rows that may repeat a product. Repeated
// products have their quantities summed; the first row keeps its remote id and
// the others are recorded in MergedLineIDs. Rows without a product id or with
// a non-positive quantity are dropped. duplicated lists every product that
// appeared more than once, in first-seen order.
func Fold(rows []CartLine) (lines map[string]CartLine, duplicated []string) {
	lines = make(map[string]CartLine, len(rows))
	seenTwice := make(map[string]bool)

	for _, row := range rows {
		if row.ProductID == "" || row.Quantity <= 0 {
			continue
		}

		existing, ok := lines[row.ProductID]
		if !ok {
			row.MergedLineIDs = append([]string(nil), row.MergedLineIDs...)
			lines[row.ProductID] = row
			continue
		}

		if !seenTwice[row.ProductID] {
			seenTwice[row.ProductID] = true
			duplicated = append(duplicated, row.ProductID)
		}

		existing.Quantity += row.Quantity
		switch {
		case existing.RemoteLineID == "":
			existing.RemoteLineID = row.RemoteLineID
		case row.RemoteLineID != "" && row.RemoteLineID != existing.RemoteLineID:
			existing.MergedLineIDs = append(existing.MergedLineIDs, row.RemoteLineID)
		}
		if existing.UnitPriceSnapshot == nil {
			existing.UnitPriceSnapshot = row.UnitPriceSnapshot
		}
		lines[row.ProductID] = existing
	}

	return lines, duplicated
}
