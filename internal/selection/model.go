// Package selection tracks the feed cursor and the article cursor over the
// two linked lists shown to the reader.
package selection

import "errors"

// ErrNoSelection is returned when an operation needs a current selection and
// there is none, or when an index falls outside the list it addresses.
var ErrNoSelection = errors.New("no current selection")

type cursor struct {
	index int
	set   bool
}

func (c *cursor) next(n int) {
	if n <= 0 {
		return
	}
	if !c.set || c.index >= n-1 {
		c.index = 0
	} else {
		c.index++
	}
	c.set = true
}

func (c *cursor) prev(n int) {
	if n <= 0 {
		return
	}
	if !c.set || c.index <= 0 || c.index > n-1 {
		c.index = n - 1
	} else {
		c.index--
	}
	c.set = true
}

func (c *cursor) get() (int, error) {
	if !c.set {
		return 0, ErrNoSelection
	}
	return c.index, nil
}

// Model holds the feed cursor (an index into the feed list) and the article
// cursor (an index into the selected feed's filtered article list). List
// lengths are passed in by the caller on every step, so the model never holds
// a stale copy of either list.
//
// A Model is not safe for concurrent use.
type Model struct {
	feed    cursor
	article cursor
}

// New returns a model with both cursors at index 0.
func New() *Model {
	return &Model{
		feed:    cursor{set: true},
		article: cursor{set: true},
	}
}

// Clear unsets both cursors.
func (m *Model) Clear() {
	m.feed = cursor{}
	m.article = cursor{}
}

// Feed returns the feed cursor, or ErrNoSelection when it is unset.
func (m *Model) Feed() (int, error) { return m.feed.get() }

// Article returns the article cursor, or ErrNoSelection when it is unset.
func (m *Model) Article() (int, error) { return m.article.get() }

// SelectFeed moves the feed cursor to index and resets the article cursor.
func (m *Model) SelectFeed(index int) {
	m.feed = cursor{index: index, set: true}
	m.article = cursor{set: true}
}

// NextFeed advances the feed cursor over a list of n feeds, wrapping from the
// last index to 0, and resets the article cursor to 0.
func (m *Model) NextFeed(n int) {
	if n <= 0 {
		return
	}
	m.feed.next(n)
	m.article = cursor{set: true}
}

// PrevFeed moves the feed cursor back, wrapping from 0 to the last index, and
// resets the article cursor to 0.
func (m *Model) PrevFeed(n int) {
	if n <= 0 {
		return
	}
	m.feed.prev(n)
	m.article = cursor{set: true}
}

// NextArticle advances the article cursor over the n articles of the
// selected feed, wrapping to 0. The feed cursor is not touched.
func (m *Model) NextArticle(n int) { m.article.next(n) }

// PrevArticle moves the article cursor back, wrapping to the last index.
func (m *Model) PrevArticle(n int) { m.article.prev(n) }

// FeedRemoved re-seats the feed cursor after a removal at the index the
// catalog handed back. The article cursor keeps its value.
func (m *Model) FeedRemoved(index int) {
	m.feed = cursor{index: index, set: true}
}
