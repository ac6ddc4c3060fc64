package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

var _ = Describe("context helpers", func() {
	It("round trips an identity", func() {
		ctx := WithIdentity(context.Background(), Identity{UserID: "u1"})
		id, ok := FromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(id.UserID).To(Equal("u1"))
	})

	It("reports a missing identity", func() {
		_, ok := FromContext(context.Background())
		Expect(ok).To(BeFalse())
	})

	It("treats an empty user id as missing", func() {
		_, ok := FromContext(WithIdentity(context.Background(), Identity{}))
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Verifier", func() {
	var verifier *Verifier

	BeforeEach(func() {
		var err error
		verifier, err = NewVerifier("secret", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a secret", func() {
		_, err := NewVerifier("", "")
		Expect(err).To(HaveOccurred())
	})

	It("accepts tokens it signed", func() {
		token, err := verifier.Sign("user-42", time.Hour)
		Expect(err).NotTo(HaveOccurred())

		id, err := verifier.VerifyHeader("Bearer " + token)
		Expect(err).NotTo(HaveOccurred())
		Expect(id.UserID).To(Equal("user-42"))
	})

	It("rejects tokens signed with another secret", func() {
		other, _ := NewVerifier("other", "")
		token, err := other.Sign("user-42", time.Hour)
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.Verify(token)
		Expect(err).To(MatchError(ErrUnauthorized))
	})

	It("rejects tokens from another issuer", func() {
		other, _ := NewVerifier("secret", "someone-else")
		token, _ := other.Sign("user-42", time.Hour)

		_, err := verifier.Verify(token)
		Expect(err).To(MatchError(ErrUnauthorized))
	})

	It("rejects expired tokens", func() {
		claims := &jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.Verify(token)
		Expect(err).To(MatchError(ErrUnauthorized))
	})

	It("rejects tokens without a subject", func() {
		claims := &jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))

		_, err := verifier.Verify(token)
		Expect(err).To(MatchError(ContainSubstring("no subject")))
	})

	It("rejects malformed headers", func() {
		_, err := verifier.VerifyHeader("Basic abc")
		Expect(err).To(MatchError(ErrUnauthorized))
	})
})
