package candidate

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeEdit", func() {
	It("decodes an item quantity edit", func() {
		e, err := DecodeEdit([]byte(`{"op": "setItemQuantity", "index": 1, "value": 3}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(SetItemQuantity{Index: 1, Value: 3}))
	})

	It("decodes a null tip", func() {
		e, err := DecodeEdit([]byte(`{"op": "setTip", "value": null}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(SetTip{Value: nil}))
	})

	It("decodes a move", func() {
		e, err := DecodeEdit([]byte(`{"op": "moveItem", "index": 0, "direction": "down"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(Equal(MoveItem{Index: 0, Direction: Down}))
	})

	It("requires an index for item edits", func() {
		_, err := DecodeEdit([]byte(`{"op": "deleteItem"}`))
		Expect(err).To(MatchError(ContainSubstring("index is required")))
	})

	It("requires a value for field edits", func() {
		_, err := DecodeEdit([]byte(`{"op": "setStoreName"}`))
		Expect(err).To(MatchError(ContainSubstring("value is required")))
	})

	It("rejects values of the wrong type", func() {
		_, err := DecodeEdit([]byte(`{"op": "setItemUnitPrice", "index": 0, "value": "cheap"}`))
		Expect(err).To(MatchError(ContainSubstring("decoding value")))
	})

	It("rejects unknown ops", func() {
		_, err := DecodeEdit([]byte(`{"op": "setTotal", "value": 1}`))
		Expect(err).To(MatchError(ContainSubstring("unknown edit op")))
	})
})

var _ = Describe("Edits", func() {
	It("survives a JSON round trip", func() {
		in := Edits{
			SetStoreName{Value: "GS25"},
			SetItemCategory{Index: 0, Value: ptr("Khác")},
			AddItem{},
			MoveItem{Index: 2, Direction: Up},
		}
		data, err := json.Marshal(in)
		Expect(err).NotTo(HaveOccurred())

		var out Edits
		Expect(json.Unmarshal(data, &out)).To(Succeed())
		Expect(out).To(Equal(in))
	})

	It("names the failing edit", func() {
		var out Edits
		err := json.Unmarshal([]byte(`[{"op": "addItem"}, {"op": "nope"}]`), &out)
		Expect(err).To(MatchError(ContainSubstring("edit 1")))
	})
})

var _ = Describe("Reconciliation", func() {
	It("replays edits over recomputed totals", func() {
		body := `{
			"candidate": {
				"storeName": "Pho 24",
				"items": [
					{"name": "Pho bo", "quantity": 2, "unitPrice": 25000, "totalPrice": 50000},
					{"name": "Tra da", "quantity": 1, "unitPrice": 15000, "totalPrice": 15000}
				],
				"subtotal": 1,
				"tax": 5000,
				"tip": null,
				"total": 1
			},
			"edits": [{"op": "deleteItem", "index": 1}]
		}`
		var r Reconciliation
		Expect(json.Unmarshal([]byte(body), &r)).To(Succeed())

		c, err := r.Apply()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Items).To(HaveLen(1))
		Expect(c.Subtotal).To(Equal(50000.0))
		Expect(c.Total).To(Equal(55000.0))
	})

	It("requires a candidate", func() {
		_, err := Reconciliation{}.Apply()
		Expect(err).To(MatchError(ErrInvalidCandidate))
	})
})
