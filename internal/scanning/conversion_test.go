package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

var _ = Describe("DetectContentType", func() {
	It("detects JPEG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
		Expect(DetectContentType(buf.Bytes())).To(Equal("image/jpeg"))
	})

	It("detects PNG", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage())).To(Succeed())
		Expect(DetectContentType(buf.Bytes())).To(Equal("image/png"))
	})

	It("detects PDF", func() {
		Expect(DetectContentType([]byte("%PDF-1.7\n..."))).To(Equal("application/pdf"))
	})

	It("detects HEIC by its ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(DetectContentType(data)).To(Equal("image/heic"))
	})

	It("falls back to the sniffed type for text", func() {
		Expect(DetectContentType([]byte("hello"))).To(Equal("text/plain"))
	})
})

var _ = Describe("SupportedContentType", func() {
	It("accepts image types with parameters", func() {
		Expect(SupportedContentType("image/JPEG; charset=binary")).To(BeTrue())
		Expect(SupportedContentType("image/jpg")).To(BeTrue())
	})

	It("rejects other types", func() {
		Expect(SupportedContentType("text/plain")).To(BeFalse())
	})
})

var _ = Describe("Extension", func() {
	It("maps JPEG to jpg", func() {
		Expect(Extension("image/jpeg")).To(Equal("jpg"))
	})

	It("uses bin for unknown types", func() {
		Expect(Extension("text/plain")).To(Equal("bin"))
	})
})

var _ = Describe("toPNG", func() {
	It("returns PNG input untouched", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testImage())).To(Succeed())
		out, err := toPNG(buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(buf.Bytes()))
	})

	It("converts JPEG to PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
		out, err := toPNG(buf.Bytes(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(DetectContentType(out)).To(Equal("image/png"))
	})

	It("fails on data that is not an image", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})
})
