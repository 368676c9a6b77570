package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/acbfrsa/member-module/internal/repository"
)

func TestSubscribe_InitialLoadError(t *testing.T) {
	feed := newFakeFeed()

	_, err := subscribe(context.Background(), feed, "test", []string{"ch"}, nil,
		func(context.Context) (int, error) { return 0, errors.New("БД недоступна") },
		testLogger(),
	)
	if err == nil {
		t.Fatal("ожидалась ошибка начального чтения")
	}

	deadline := time.Now().Add(time.Second)
	for feed.active() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if feed.active() != 0 {
		t.Error("слушатель не освобождён после ошибки")
	}
}

func TestSubscribe_ListenError(t *testing.T) {
	feed := newFakeFeed()
	feed.listenErr = errors.New("пул исчерпан")

	_, err := subscribe(context.Background(), feed, "test", []string{"ch"}, nil,
		func(context.Context) (int, error) { return 1, nil },
		testLogger(),
	)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
}

func TestSubscribe_ReloadErrorKeepsSubscription(t *testing.T) {
	feed := newFakeFeed()
	var calls atomic.Int32

	sub, err := subscribe(context.Background(), feed, "test", []string{"ch"}, nil,
		func(context.Context) (int, error) {
			n := calls.Add(1)
			if n == 2 {
				return 0, errors.New("временная ошибка")
			}
			return int(n), nil
		},
		testLogger(),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if got := recv(t, sub.Updates()); got != 1 {
		t.Fatalf("начальное состояние = %d", got)
	}
	feed.notify("ch", "x")
	feed.notify("ch", "y")
	if got := recv(t, sub.Updates()); got != 3 {
		t.Errorf("после ошибки перечитывания = %d, хотели 3", got)
	}
}

func TestSubscribe_MatchFilters(t *testing.T) {
	feed := newFakeFeed()
	var calls atomic.Int32

	sub, err := subscribe(context.Background(), feed, "test", []string{"ch"},
		func(n repository.Notification) bool { return n.Payload == "mine" },
		func(context.Context) (int32, error) { return calls.Add(1), nil },
		testLogger(),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	recv(t, sub.Updates())
	feed.notify("ch", "other")
	feed.notify("ch", "mine")
	if got := recv(t, sub.Updates()); got != 2 {
		t.Errorf("загрузок = %d, хотели 2 (чужое уведомление отфильтровано)", got)
	}
}

func TestSubscribe_ParentCancel(t *testing.T) {
	feed := newFakeFeed()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := subscribe(ctx, feed, "test", []string{"ch"}, nil,
		func(context.Context) (int, error) { return 1, nil },
		testLogger(),
	)
	if err != nil {
		t.Fatal(err)
	}
	recv(t, sub.Updates())
	cancel()

	select {
	case _, ok := <-sub.Updates():
		if ok {
			t.Error("после отмены не должно быть обновлений")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("канал не закрыт после отмены контекста")
	}
	sub.Close()
	if feed.active() != 0 {
		t.Error("слушатель не освобождён")
	}
}

func TestRoleCache(t *testing.T) {
	c := NewRoleCache(2, time.Minute)

	if _, ok := c.Get("u-1"); ok {
		t.Fatal("пустой кэш вернул значение")
	}
	c.Set("u-1", "")
	if role, ok := c.Get("u-1"); !ok || role != "" {
		t.Errorf("пустая роль должна кэшироваться: %q, %v", role, ok)
	}
	c.Set("u-2", "admin")
	c.Set("u-3", "member")
	if _, ok := c.Get("u-1"); ok {
		t.Error("LRU должен вытеснить самую старую запись")
	}

	c.Invalidate("u-2")
	if _, ok := c.Get("u-2"); ok {
		t.Error("Invalidate не удалил запись")
	}
	c.Purge()
	if _, ok := c.Get("u-3"); ok {
		t.Error("Purge не очистил кэш")
	}
}
