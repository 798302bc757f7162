package validation_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/common/validation"
)

func fieldsOf(err *internal.AppError) []string {
	details, ok := err.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	out := make([]string, 0, len(details.Errors))
	for _, e := range details.Errors {
		out = append(out, e.Field)
	}
	return out
}

var _ = Describe("ValidationBuilder", func() {
	It("collects every failing field", func() {
		// Given a builder with three broken fields
		v := validation.NewValidator()
		v.Field("username", "bad name!").Required().Identifier()
		v.Field("email", "Someone <a@b.c>").Email()
		v.Field("role", "root").OneOf([]string{"user", "admin"}, internal.ErrCodeInvalidRole)

		// When validated
		err := v.Validate()

		// Then all three are reported
		Expect(err).NotTo(BeNil())
		Expect(err.Type).To(Equal(internal.ErrorTypeValidation))
		Expect(fieldsOf(err)).To(ConsistOf("username", "email", "role"))
	})

	It("passes valid input", func() {
		v := validation.NewValidator()
		v.Field("username", "ada.l").Required().Identifier().MinLength(3)
		v.Field("email", "ada@example.com").Email()
		v.Field("role", "").OneOf([]string{"user"}, internal.ErrCodeInvalidRole)

		Expect(v.Validate()).To(BeNil())
	})
})

var _ = Describe("ValidateCommand", func() {
	It("requires non-blank text", func() {
		err := validation.ValidateCommand("   ", 10)
		Expect(err).NotTo(BeNil())
		Expect(fieldsOf(err)).To(ConsistOf("command"))
	})

	It("bounds the length", func() {
		Expect(validation.ValidateCommand(strings.Repeat("a", 11), 10)).NotTo(BeNil())
		Expect(validation.ValidateCommand(strings.Repeat("a", 10), 10)).To(BeNil())
	})
})

var _ = Describe("ValidatePageLimit", func() {
	It("caps the page size", func() {
		err := validation.ValidatePageLimit(1001, 1000)
		Expect(err).NotTo(BeNil())
		Expect(fieldsOf(err)).To(ConsistOf("limit"))
		Expect(validation.ValidatePageLimit(1000, 1000)).To(BeNil())
	})
})
