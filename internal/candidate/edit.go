package candidate

import (
	"math"

	"github.com/zombor/billnote/internal/money"
)

// Edit is a single change to a candidate. The set of edits is closed:
// only the types in this package implement it.
type Edit interface {
	// Op names the edit on the wire
	Op() string
	apply(c *Candidate) error
}

// Direction moves an item one place up or down
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

type SetStoreName struct{ Value string }
type SetStoreAddress struct{ Value *string }
type SetDate struct{ Value *string }
type SetTime struct{ Value *string }
type SetTax struct{ Value *float64 }
type SetTip struct{ Value *float64 }

type SetItemName struct {
	Index int
	Value string
}

type SetItemDescription struct {
	Index int
	Value *string
}

type SetItemQuantity struct {
	Index int
	Value float64
}

type SetItemUnitPrice struct {
	Index int
	Value float64
}

type SetItemCategory struct {
	Index int
	Value *string
}

// AddItem appends an empty line authored by the user
type AddItem struct{}

type DeleteItem struct{ Index int }

// MoveItem swaps an item with its neighbour. Moving past either end is a no-op.
type MoveItem struct {
	Index     int
	Direction Direction
}

func (SetStoreName) Op() string       { return "setStoreName" }
func (SetStoreAddress) Op() string    { return "setStoreAddress" }
func (SetDate) Op() string            { return "setDate" }
func (SetTime) Op() string            { return "setTime" }
func (SetTax) Op() string             { return "setTax" }
func (SetTip) Op() string             { return "setTip" }
func (SetItemName) Op() string        { return "setItemName" }
func (SetItemDescription) Op() string { return "setItemDescription" }
func (SetItemQuantity) Op() string    { return "setItemQuantity" }
func (SetItemUnitPrice) Op() string   { return "setItemUnitPrice" }
func (SetItemCategory) Op() string    { return "setItemCategory" }
func (AddItem) Op() string            { return "addItem" }
func (DeleteItem) Op() string         { return "deleteItem" }
func (MoveItem) Op() string           { return "moveItem" }

func (e SetStoreName) apply(c *Candidate) error {
	c.StoreName = e.Value
	return nil
}

func (e SetStoreAddress) apply(c *Candidate) error {
	c.StoreAddress = cloneString(e.Value)
	return nil
}

func (e SetDate) apply(c *Candidate) error {
	c.Date = cloneString(e.Value)
	return nil
}

func (e SetTime) apply(c *Candidate) error {
	c.Time = cloneString(e.Value)
	return nil
}

func (e SetTax) apply(c *Candidate) error {
	if err := checkOptionalAmount(e.Value); err != nil {
		return err
	}
	c.Tax = cloneFloat(e.Value)
	return nil
}

func (e SetTip) apply(c *Candidate) error {
	if err := checkOptionalAmount(e.Value); err != nil {
		return err
	}
	c.Tip = cloneFloat(e.Value)
	return nil
}

func (e SetItemName) apply(c *Candidate) error {
	item, err := c.item(e.Index)
	if err != nil {
		return err
	}
	item.Name = e.Value
	return nil
}

func (e SetItemDescription) apply(c *Candidate) error {
	item, err := c.item(e.Index)
	if err != nil {
		return err
	}
	item.Description = cloneString(e.Value)
	return nil
}

func (e SetItemQuantity) apply(c *Candidate) error {
	item, err := c.item(e.Index)
	if err != nil {
		return err
	}
	if err := checkAmount(e.Value); err != nil {
		return err
	}
	item.Quantity = e.Value
	item.TotalPrice = money.LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

func (e SetItemUnitPrice) apply(c *Candidate) error {
	item, err := c.item(e.Index)
	if err != nil {
		return err
	}
	if err := checkAmount(e.Value); err != nil {
		return err
	}
	item.UnitPrice = e.Value
	item.TotalPrice = money.LineTotal(item.Quantity, item.UnitPrice)
	return nil
}

func (e SetItemCategory) apply(c *Candidate) error {
	item, err := c.item(e.Index)
	if err != nil {
		return err
	}
	item.Category = cloneString(e.Value)
	return nil
}

func (AddItem) apply(c *Candidate) error {
	c.Items = append(c.Items, Item{
		Quantity:        1,
		UnitPrice:       0,
		TotalPrice:      0,
		ConfidenceScore: 1.0,
	})
	return nil
}

func (e DeleteItem) apply(c *Candidate) error {
	if _, err := c.item(e.Index); err != nil {
		return err
	}
	c.Items = append(c.Items[:e.Index], c.Items[e.Index+1:]...)
	return nil
}

func (e MoveItem) apply(c *Candidate) error {
	if _, err := c.item(e.Index); err != nil {
		return err
	}

	var target int
	switch e.Direction {
	case Up:
		target = e.Index - 1
	case Down:
		target = e.Index + 1
	default:
		return ErrInvalidDirection
	}
	if target < 0 || target >= len(c.Items) {
		return nil
	}

	c.Items[e.Index], c.Items[target] = c.Items[target], c.Items[e.Index]
	return nil
}

func (c *Candidate) item(index int) (*Item, error) {
	if index < 0 || index >= len(c.Items) {
		return nil, ErrIndexOutOfRange
	}
	return &c.Items[index], nil
}

func checkAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidNumber
	}
	if v < 0 {
		return ErrNegativeValue
	}
	return nil
}

func checkOptionalAmount(v *float64) error {
	if v == nil {
		return nil
	}
	return checkAmount(*v)
}
