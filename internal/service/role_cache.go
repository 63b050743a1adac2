// role_cache.go — LRU-кэш справочника ролей с TTL.
// Роли читаются при каждой проверке rootRole и назначении роли группе,
// а меняются только миграциями.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/flagadmin/internal/domain/model"
	"github.com/bigkaa/flagadmin/internal/repository"
)

var (
	roleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flag_admin_role_cache_hits_total",
		Help: "Попадания в кэш ролей",
	})
	roleCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flag_admin_role_cache_misses_total",
		Help: "Промахи кэша ролей",
	})
)

// CachedRoleRepository — RoleRepository с кэшированием Get.
// Ошибки (в том числе ErrNotFound) не кэшируются. List всегда читает хранилище.
// Кэш хранит собственные копии ролей и отдаёт каждому вызывающему новую копию.
type CachedRoleRepository struct {
	next  repository.RoleRepository
	cache *expirable.LRU[int, model.Role]
}

// NewCachedRoleRepository оборачивает repo кэшем на maxSize записей с временем жизни ttl.
func NewCachedRoleRepository(repo repository.RoleRepository, maxSize int, ttl time.Duration) *CachedRoleRepository {
	return &CachedRoleRepository{
		next:  repo,
		cache: expirable.NewLRU[int, model.Role](maxSize, nil, ttl),
	}
}

// Get возвращает роль из кэша или из хранилища.
func (c *CachedRoleRepository) Get(ctx context.Context, id int) (*model.Role, error) {
	if role, ok := c.cache.Get(id); ok {
		roleCacheHitsTotal.Inc()
		return cloneRole(role), nil
	}
	roleCacheMissesTotal.Inc()

	role, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *cloneRole(*role))
	return role, nil
}

// List возвращает все роли и обновляет по ним кэш.
func (c *CachedRoleRepository) List(ctx context.Context) ([]*model.Role, error) {
	roles, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		c.cache.Add(role.ID, *cloneRole(*role))
	}
	return roles, nil
}

func cloneRole(r model.Role) *model.Role {
	if r.Description != nil {
		d := *r.Description
		r.Description = &d
	}
	return &r
}
