package permission_test

import (
	"github.com/frahmantamala/assistant-guard/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Role definitions", func() {
	It("should define every role explicitly", func() {
		for _, role := range permission.Roles() {
			def, ok := permission.Definition(role)
			Expect(ok).To(BeTrue(), string(role))
			Expect(def.DisplayName).NotTo(BeEmpty())
			Expect(def.Permissions).NotTo(BeEmpty())
		}
	})

	It("should keep each role a superset of the one below it", func() {
		roles := permission.Roles()
		for i := 1; i < len(roles); i++ {
			higher := permission.RolePermissions(roles[i])
			lower := permission.RolePermissions(roles[i-1])
			Expect(higher.IsSuperset(lower)).To(BeTrue(), "%s should include %s", roles[i], roles[i-1])
		}
	})

	It("should give super_admin every permission", func() {
		all := permission.NewSet(permission.All()...)
		Expect(permission.RolePermissions(permission.RoleSuperAdmin)).To(Equal(all))
		Expect(all).To(HaveLen(27))
	})

	It("should limit guest to chat", func() {
		Expect(permission.RolePermissions(permission.RoleGuest).Strings()).To(Equal([]string{"chat"}))
	})

	It("should hand out copies of the base sets", func() {
		// Given
		s := permission.RolePermissions(permission.RoleUser)

		// When
		s[permission.FullAccess] = struct{}{}

		// Then
		Expect(permission.RolePermissions(permission.RoleUser).Has(permission.FullAccess)).To(BeFalse())
	})

	DescribeTable("ParseRole",
		func(input string, expected permission.Role, ok bool) {
			role, err := permission.ParseRole(input)
			if !ok {
				Expect(err).To(MatchError(permission.ErrUnknownRole))
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(Equal(expected))
		},
		Entry("canonical", "developer", permission.RoleDeveloper, true),
		Entry("legacy agent alias", "agent", permission.RoleDeveloper, true),
		Entry("mixed case", " Super_Admin ", permission.RoleSuperAdmin, true),
		Entry("unknown", "root", permission.Role(""), false),
	)

	It("should treat admin and super_admin as administrative", func() {
		Expect(permission.RoleAdmin.IsAdministrative()).To(BeTrue())
		Expect(permission.RoleSuperAdmin.IsAdministrative()).To(BeTrue())
		Expect(permission.RoleDeveloper.IsAdministrative()).To(BeFalse())
	})

	It("should describe permissions with display names and groups", func() {
		Expect(permission.WorkflowView.DisplayName()).To(Equal("Workflow View"))
		Expect(permission.WorkflowView.Group()).To(Equal("Workflow"))
		Expect(permission.AllInfo()).To(HaveLen(len(permission.All())))
	})
})

var _ = Describe("Category mapping", func() {
	It("should map known categories", func() {
		p, ok := permission.CategoryPermission(permission.CategorySystem)
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal(permission.SystemAccess))
	})

	It("should not map unknown categories", func() {
		_, ok := permission.CategoryPermission(permission.Category("teleport"))
		Expect(ok).To(BeFalse())
	})

	It("should list accessible tools and workflows", func() {
		user := permission.RolePermissions(permission.RoleUser)
		Expect(permission.AccessibleTools(user)).To(ConsistOf("web_search", "weather_lookup", "web_scraper", "url_summarizer"))
		Expect(permission.AccessibleWorkflows(user)).To(ConsistOf("send_followup_email", "daily_summary"))
		Expect(permission.AccessiblePlugins(permission.RolePermissions(permission.RoleAdmin))).To(Equal([]string{"all"}))
		Expect(permission.AccessibleTools(permission.RolePermissions(permission.RoleGuest))).To(BeEmpty())
	})
})
