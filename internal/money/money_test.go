package money

import (
	"encoding/json"
	"math"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestMoney(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Money Suite")
}

var _ = Describe("ParseCurrency", func() {
	It("defaults an empty code to VND", func() {
		c, err := ParseCurrency("")
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(VND))
	})

	It("is case insensitive", func() {
		c, err := ParseCurrency(" usd ")
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(USD))
	})

	It("rejects unknown codes", func() {
		_, err := ParseCurrency("GBP")
		Expect(err).To(MatchError(ContainSubstring("unsupported currency")))
	})
})

var _ = Describe("LineTotal", func() {
	It("multiplies quantity by unit price", func() {
		Expect(LineTotal(2, 25000)).To(Equal(50000.0))
	})

	It("treats negative quantities as zero", func() {
		Expect(LineTotal(-3, 100)).To(Equal(0.0))
	})

	It("treats NaN quantities as zero", func() {
		Expect(NormalizeQuantity(math.NaN())).To(Equal(0.0))
	})
})

var _ = Describe("LineTotalExact", func() {
	It("rounds VND to whole units", func() {
		total := LineTotalExact(decimal.NewFromFloat(1.5), decimal.NewFromInt(3333), VND)
		Expect(total.String()).To(Equal("5000"))
	})

	It("rounds USD to cents", func() {
		total := LineTotalExact(decimal.NewFromInt(3), decimal.NewFromFloat(0.335), USD)
		Expect(total.StringFixed(2)).To(Equal("1.01"))
	})

	It("clamps negative quantities", func() {
		total := LineTotalExact(decimal.NewFromInt(-1), decimal.NewFromInt(10), USD)
		Expect(total.IsZero()).To(BeTrue())
	})
})

var _ = Describe("Sum", func() {
	It("returns zero with no amounts", func() {
		Expect(Sum().IsZero()).To(BeTrue())
	})

	It("adds every amount", func() {
		Expect(Sum(decimal.NewFromInt(50000), decimal.NewFromInt(15000)).String()).To(Equal("65000"))
	})
})

var _ = Describe("Format", func() {
	It("formats VND with dot grouping and no fraction", func() {
		Expect(Format(70000, VND)).To(Equal("70.000 ₫"))
	})

	It("formats USD with comma grouping and cents", func() {
		Expect(Format(1234.5, USD)).To(Equal("$1,234.50"))
	})

	It("formats EUR with a decimal comma", func() {
		Expect(Format(12.5, EUR)).To(Equal("€12,50"))
	})

	It("keeps the sign outside the symbol", func() {
		Expect(Format(-12.5, USD)).To(Equal("-$12.50"))
	})
})

var _ = Describe("decimal JSON", func() {
	It("renders amounts as numbers", func() {
		data, err := json.Marshal(struct {
			Total decimal.Decimal `json:"total"`
		}{decimal.NewFromInt(50000)})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"total":50000}`))
	})
})
