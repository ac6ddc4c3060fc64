package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLogging(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logging Suite")
}

var _ = Describe("ParseLevel", func() {
	DescribeTable("maps names to levels",
		func(name string, want slog.Level) {
			Expect(ParseLevel(name)).To(Equal(want))
		},
		Entry("debug", "debug", slog.LevelDebug),
		Entry("upper case", " WARN ", slog.LevelWarn),
		Entry("warning", "warning", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("unknown", "verbose", slog.LevelInfo),
		Entry("empty", "", slog.LevelInfo),
	)
})

var _ = Describe("New", func() {
	It("writes JSON records at or above the level", func() {
		var buf bytes.Buffer
		logger := New(&buf, "warn", "json")
		logger.Info("hidden")
		logger.Warn("Upload failed", "key", "alice/1.jpg")

		var record map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
		Expect(record["msg"]).To(Equal("Upload failed"))
		Expect(record["key"]).To(Equal("alice/1.jpg"))
	})

	It("defaults to text", func() {
		var buf bytes.Buffer
		New(&buf, "info", "").Info("Server started", "address", ":8080")
		Expect(buf.String()).To(ContainSubstring(`msg="Server started" address=:8080`))
	})
})
