// Пакет rbac — иерархия ролей сайта ACBF RSA.
// Три уровня: member < admin < super_admin.
// Итоговая роль пользователя = max(роль из IdP, роль профиля, легаси-допуск админа).
// Нераспознанная роль — это «нет роли», а не member.
package rbac

import "strings"

// Роли в порядке возрастания привилегий.
const (
	RoleMember     = "member"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleMember:     1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

// roleAliases — допустимые написания ролей (после приведения к нижнему регистру).
var roleAliases = map[string]string{
	"member":      RoleMember,
	"admin":       RoleAdmin,
	"super_admin": RoleSuperAdmin,
	"super-admin": RoleSuperAdmin,
	"superadmin":  RoleSuperAdmin,
}

// NormalizeRole приводит роль к каноническому значению.
// Регистр не учитывается, пробелы по краям отбрасываются.
// Для пустой или неизвестной роли возвращает ("", false).
func NormalizeRole(role string) (string, bool) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(role))]
	return r, ok
}

// IsValidRole проверяет, нормализуется ли строка в допустимую роль.
func IsValidRole(role string) bool {
	_, ok := NormalizeRole(role)
	return ok
}

// priority возвращает вес роли или 0, если роль не распознана.
func priority(role string) int {
	r, ok := NormalizeRole(role)
	if !ok {
		return 0
	}
	return roleWeight[r]
}

// HasAtLeastRole — true, если обе роли распознаны и role не ниже required.
func HasAtLeastRole(role, required string) bool {
	p, req := priority(role), priority(required)
	if p == 0 || req == 0 {
		return false
	}
	return p >= req
}

// CanManageRole — true, если actor строго старше target.
// Управлять своим уровнем (и равными) нельзя.
func CanManageRole(actor, target string) bool {
	a, t := priority(actor), priority(target)
	if a == 0 || t == 0 {
		return false
	}
	return a > t
}

// EffectiveRole вычисляет итоговую роль = максимум из переданных.
// Нераспознанные и пустые значения пропускаются.
// Если ни одна роль не распознана — возвращает пустую строку.
func EffectiveRole(roles ...string) string {
	highest := ""
	for _, r := range roles {
		n, ok := NormalizeRole(r)
		if !ok {
			continue
		}
		if highest == "" || roleWeight[n] > roleWeight[highest] {
			highest = n
		}
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя на основе его групп IdP.
// Проверяет принадлежность к adminGroups и superAdminGroups.
// Если ни одна группа не совпала — возвращает пустую строку.
func MapGroupsToRole(groups []string, adminGroups, superAdminGroups []string) string {
	adminSet := toSet(adminGroups)
	superSet := toSet(superAdminGroups)

	var roles []string
	for _, g := range groups {
		// Keycloak может отдавать группы с ведущим "/" (full path)
		g = strings.TrimPrefix(g, "/")
		if superSet[g] {
			roles = append(roles, RoleSuperAdmin)
		}
		if adminSet[g] {
			roles = append(roles, RoleAdmin)
		}
	}

	return EffectiveRole(roles...)
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
