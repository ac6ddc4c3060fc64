package scanning

import (
	"fmt"
	"strings"
)

const receiptSchema = `{
  "storeName": "string",
  "storeAddress": "string or null",
  "date": "YYYY-MM-DD or null",
  "time": "HH:MM or null",
  "items": [
    {
      "name": "string",
      "description": "string or null",
      "quantity": 1,
      "unitPrice": 0,
      "totalPrice": 0,
      "category": "string or null",
      "confidenceScore": 0.0
    }
  ],
  "subtotal": 0,
  "tax": 0,
  "tip": null,
  "total": 0,
  "currency": "VND | USD | EUR",
  "confidence": 0.0,
  "paymentMethod": "string or null",
  "receiptNumber": "string or null",
  "merchantId": "string or null"
}`

// buildPrompt renders the provider prompt for the given options
func buildPrompt(opts Options) string {
	var b strings.Builder

	b.WriteString("You are analyzing a photo of a receipt or invoice. Read all of the text and extract the purchase as JSON.\n\n")
	b.WriteString("1. **Store**: the merchant name printed at the top, and its address if printed.\n")
	b.WriteString("2. **Date and time** of the transaction. Convert the date to YYYY-MM-DD and the time to 24h HH:MM.\n")
	if opts.DetectionMode == DetectionBasic {
		b.WriteString("3. **Items**: one entry per purchased line with name, quantity, unit price and line total. Skip descriptions.\n")
	} else {
		b.WriteString("3. **Items**: one entry per purchased line with name, a short description, quantity, unit price and line total. Keep the order printed on the receipt.\n")
	}
	b.WriteString("4. **Totals**: subtotal, tax (VAT), tip or service charge, and the grand total.\n")
	b.WriteString("5. **Currency**: VND, USD or EUR. Amounts in VND have no decimals.\n")
	b.WriteString("6. **Confidence**: a number between 0 and 1 for each item and for the receipt as a whole.\n")
	if opts.DetectionMode != DetectionBasic {
		b.WriteString("7. **Payment**: payment method, receipt number and merchant id when printed.\n")
	}
	if opts.CategorySuggestions {
		b.WriteString("\nSuggest a spending category for each item (for example food, household, transport, clothing, entertainment, education, health, other).\n")
	}
	if opts.PreferredLanguage != "" {
		fmt.Fprintf(&b, "\nWrite item names, descriptions and categories in the language with code %q, keeping brand names as printed.\n", opts.PreferredLanguage)
	}

	b.WriteString("\nReturn ONLY valid JSON in this exact format:\n")
	b.WriteString(receiptSchema)
	b.WriteString(`

Important:
- Amounts must be numbers, not strings, without currency symbols or thousands separators
- If you cannot find a field, use null for that field
- Do not invent items or amounts that are not printed
- Do not include any text before or after the JSON
- Do not use markdown code blocks`)

	return b.String()
}
