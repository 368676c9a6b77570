// role_cache.go — LRU-кэш ролей, сохранённых в БД (профиль + допуск администратора).
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_role_cache_hits_total",
		Help: "Общее количество попаданий в кэш ролей.",
	})
	roleCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_role_cache_misses_total",
		Help: "Общее количество промахов кэша ролей.",
	})
)

// RoleCache — кэш роли по uid. Пустая строка — валидное значение («роли нет»).
// Каждый экземпляр сервиса держит собственный кэш, поэтому TTL должен быть коротким.
type RoleCache struct {
	cache *expirable.LRU[string, string]
}

// NewRoleCache создаёт кэш с ограничением размера и TTL записи.
func NewRoleCache(maxSize int, ttl time.Duration) *RoleCache {
	return &RoleCache{cache: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

// Get возвращает роль из кэша и обновляет метрики hit/miss.
func (c *RoleCache) Get(uid string) (string, bool) {
	role, ok := c.cache.Get(uid)
	if ok {
		roleCacheHitsTotal.Inc()
		return role, true
	}
	roleCacheMissesTotal.Inc()
	return "", false
}

// Set сохраняет роль.
func (c *RoleCache) Set(uid, role string) {
	c.cache.Add(uid, role)
}

// Invalidate удаляет запись пользователя.
func (c *RoleCache) Invalidate(uid string) {
	c.cache.Remove(uid)
}

// Purge очищает кэш (изменения допусков по email не привязаны к uid).
func (c *RoleCache) Purge() {
	c.cache.Purge()
}
