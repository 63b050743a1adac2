// membership.go — вычисление разницы членства (множества по ID).
package service

import "github.com/bigkaa/flagadmin/internal/domain/model"

// diffMembers сравнивает текущий и желаемый состав.
// add = desired − existing, remove = existing − desired; порядок входных срезов сохраняется.
func diffMembers(existing, desired []string) (add, remove []string) {
	existingSet := toSet(existing)
	desiredSet := toSet(desired)

	for _, id := range uniqueStrings(desired) {
		if !existingSet[id] {
			add = append(add, id)
		}
	}
	for _, id := range uniqueStrings(existing) {
		if !desiredSet[id] {
			remove = append(remove, id)
		}
	}
	return add, remove
}

// externalGroupsDiff вычисляет изменения членства пользователя по списку внешних групп.
// Группа подразумевается внешним списком, если одно из её mappings_sso совпадает с именем из списка.
// Удаление затрагивает только группы с непустым mappings_sso: ручные группы синхронизация не трогает.
func externalGroupsDiff(current, mapped []*model.Group, externalGroups []string) (add, remove []string) {
	external := toSet(externalGroups)

	implied := make(map[string]bool)
	var impliedIDs []string
	for _, g := range mapped {
		for _, m := range g.MappingsSSO {
			if external[m] {
				if !implied[g.ID] {
					implied[g.ID] = true
					impliedIDs = append(impliedIDs, g.ID)
				}
				break
			}
		}
	}

	var managedCurrent []string
	for _, g := range current {
		if len(g.MappingsSSO) > 0 {
			managedCurrent = append(managedCurrent, g.ID)
		}
	}

	currentIDs := make([]string, 0, len(current))
	for _, g := range current {
		currentIDs = append(currentIDs, g.ID)
	}

	add, _ = diffMembers(currentIDs, impliedIDs)
	_, remove = diffMembers(managedCurrent, impliedIDs)
	return add, remove
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

// uniqueStrings убирает повторы и пустые строки, сохраняя порядок.
func uniqueStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}
