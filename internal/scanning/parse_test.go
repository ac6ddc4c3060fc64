package scanning

import (
	"io"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestScanning(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Scanning Suite")
}

var _ = Describe("parseReceiptJSON", func() {
	var (
		jsonInput string
		data      *ReceiptData
		err       error
	)

	JustBeforeEach(func() {
		data, err = parseReceiptJSON(jsonInput)
	})

	When("parsing a complete receipt", func() {
		BeforeEach(func() {
			jsonInput = `{
				"storeName": " Circle K ",
				"storeAddress": "12 Lê Lợi, Q1",
				"date": "2024-03-20",
				"time": "14:05",
				"items": [
					{"name": "Cà phê sữa", "quantity": 2, "unitPrice": 25000, "totalPrice": 50000, "confidenceScore": 0.95},
					{"name": "Bánh mì", "quantity": 1, "unitPrice": 15000, "totalPrice": 15000, "confidenceScore": 0.6}
				],
				"subtotal": 65000,
				"tax": 5000,
				"tip": null,
				"total": 70000,
				"currency": "vnd",
				"confidence": 0.88,
				"paymentMethod": "cash"
			}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should trim the store name", func() {
			Expect(data.StoreName).To(Equal("Circle K"))
		})

		It("should parse the items in order", func() {
			Expect(data.Items).To(HaveLen(2))
			Expect(data.Items[0].Name).To(Equal("Cà phê sữa"))
			Expect(*data.Items[0].TotalPrice).To(Equal(50000.0))
			Expect(*data.Items[1].ConfidenceScore).To(Equal(0.6))
		})

		It("should keep a null tip as nil", func() {
			Expect(data.Tip).To(BeNil())
			Expect(*data.Tax).To(Equal(5000.0))
		})

		It("should upper-case the currency", func() {
			Expect(*data.Currency).To(Equal("VND"))
		})

		It("should keep the supplementary fields", func() {
			Expect(*data.PaymentMethod).To(Equal("cash"))
			Expect(data.ReceiptNumber).To(BeNil())
		})
	})

	When("parsing JSON with markdown code blocks", func() {
		BeforeEach(func() {
			jsonInput = "```json\n{\"storeName\": \"Test\", \"date\": \"2024-01-15\", \"items\": []}\n```"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the store name correctly", func() {
			Expect(data.StoreName).To(Equal("Test"))
		})
	})

	When("the reply has prose around the JSON", func() {
		BeforeEach(func() {
			jsonInput = "Here is the receipt:\n{\"storeName\": \"Test\"}\nHope this helps."
		})

		It("should extract the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.StoreName).To(Equal("Test"))
		})

		It("should default items to an empty list", func() {
			Expect(data.Items).NotTo(BeNil())
			Expect(data.Items).To(BeEmpty())
		})
	})

	When("the date uses day-first notation", func() {
		BeforeEach(func() {
			jsonInput = `{"storeName": "Test", "date": "20/03/2024", "time": "2:05 pm"}`
		})

		It("should normalize the date", func() {
			Expect(*data.Date).To(Equal("2024-03-20"))
		})

		It("should normalize the time to 24h", func() {
			Expect(*data.Time).To(Equal("14:05"))
		})
	})

	DescribeTable("numeric dates",
		func(raw, want string) {
			d, err := parseReceiptJSON(`{"storeName": "Test", "date": "` + raw + `"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*d.Date).To(Equal(want))
		},
		Entry("day first when the day is past 12", "25/03/2024", "2024-03-25"),
		Entry("month first when the day is past 12", "03/25/2024", "2024-03-25"),
		Entry("same day and month", "03/03/2024", "2024-03-03"),
		Entry("day first with dots", "25.03.2024", "2024-03-25"),
		Entry("slashes kept verbatim when either order is valid", "05/03/2024", "05/03/2024"),
		Entry("dashes kept verbatim when either order is valid", "05-03-2024", "05-03-2024"),
		Entry("dots kept verbatim when either order is valid", "05.03.2024", "05.03.2024"),
		Entry("ISO is never ambiguous", "2024-05-03", "2024-05-03"),
	)

	When("the date cannot be parsed", func() {
		BeforeEach(func() {
			jsonInput = `{"storeName": "Test", "date": "yesterday"}`
		})

		It("should keep the raw value", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(*data.Date).To(Equal("yesterday"))
		})
	})

	When("the date is missing", func() {
		BeforeEach(func() {
			jsonInput = `{"storeName": "Test", "date": ""}`
		})

		It("should leave it nil", func() {
			Expect(data.Date).To(BeNil())
		})
	})

	When("confidence values are out of range", func() {
		BeforeEach(func() {
			jsonInput = `{"storeName": "Test", "confidence": 1.4, "items": [{"name": "x", "confidenceScore": -0.2}]}`
		})

		It("should clamp them to [0,1]", func() {
			Expect(*data.Confidence).To(Equal(1.0))
			Expect(*data.Items[0].ConfidenceScore).To(Equal(0.0))
		})
	})

	When("parsing invalid JSON", func() {
		BeforeEach(func() {
			jsonInput = `invalid json`
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("no JSON object found")))
		})
	})

	When("the object is malformed", func() {
		BeforeEach(func() {
			jsonInput = `{"storeName": }`
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unmarshaling json")))
		})
	})
})

var _ = Describe("buildPrompt", func() {
	It("asks for descriptions in detailed mode", func() {
		Expect(buildPrompt(Options{DetectionMode: DetectionDetailed})).To(ContainSubstring("short description"))
	})

	It("skips descriptions in basic mode", func() {
		prompt := buildPrompt(Options{DetectionMode: DetectionBasic})
		Expect(prompt).To(ContainSubstring("Skip descriptions"))
		Expect(prompt).NotTo(ContainSubstring("payment method"))
	})

	It("asks for categories when suggestions are enabled", func() {
		Expect(buildPrompt(Options{CategorySuggestions: true})).To(ContainSubstring("spending category"))
	})

	It("names the preferred language", func() {
		Expect(buildPrompt(Options{PreferredLanguage: "vi"})).To(ContainSubstring(`"vi"`))
	})
})
