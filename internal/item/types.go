package item

// ItemBase is the writable payload of an item. Both fields are required
// when creating or replacing an item.
type ItemBase struct { //nolint:revive // item.ItemBase mirrors the public API schema name
	Ganancia float64 `json:"ganancia"`
	Peso     float64 `json:"peso"`
}

// Item is a stored record.
type Item struct {
	ID       int64   `json:"id"`
	Ganancia float64 `json:"ganancia"`
	Peso     float64 `json:"peso"`
}

// ItemUpdate is a partial payload. A nil field was not supplied by the
// caller and must leave the stored value alone.
type ItemUpdate struct { //nolint:revive // item.ItemUpdate mirrors the public API schema name
	Peso     *float64 `json:"peso,omitempty"`
	Ganancia *float64 `json:"ganancia,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u ItemUpdate) IsEmpty() bool {
	return u.Peso == nil && u.Ganancia == nil
}

// apply copies the supplied fields of u onto the item.
func (i *Item) apply(u ItemUpdate) {
	if u.Peso != nil {
		i.Peso = *u.Peso
	}
	if u.Ganancia != nil {
		i.Ganancia = *u.Ganancia
	}
}
