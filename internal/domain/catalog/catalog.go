// Package catalog administers books and members.
package catalog

import (
	"context"
	"strings"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
)

// BookUpdate carries the fields to change; nil leaves a field untouched.
type BookUpdate struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	ISBN        *string `json:"isbn"`
	TotalCopies *int    `json:"totalCopies"`
}

// MemberUpdate carries the fields to change; nil leaves a field untouched.
type MemberUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// Service manages the catalog.
type Service struct {
	store  repository.Store
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds a catalog service over store.
func NewService(store repository.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("catalog")
	}
	return s
}

func (s *Service) CreateBook(ctx context.Context, title, author, isbn string, totalCopies int) (*model.Book, error) {
	if err := required(map[string]string{"title": title, "author": author, "isbn": isbn}); err != nil {
		return nil, err
	}
	b, err := model.NewBook(strings.TrimSpace(title), strings.TrimSpace(author), strings.TrimSpace(isbn), totalCopies)
	if err != nil {
		return nil, err
	}
	if err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertBook(ctx, b)
	}); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "book created", logger.Int64("bookId", b.ID), logger.String("isbn", b.ISBN))
	return b, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	var b *model.Book
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		b, err = tx.FindBook(ctx, id)
		return err
	})
	return b, err
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	var out []model.Book
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListBooks(ctx)
		return err
	})
	return out, err
}

// UpdateBook applies u under the book lock so that a copy-count change
// cannot race a borrow or return.
func (s *Service) UpdateBook(ctx context.Context, id int64, u BookUpdate) (*model.Book, error) {
	var b *model.Book
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if b, err = tx.LockBook(ctx, id); err != nil {
			return err
		}
		for _, f := range []struct {
			name string
			v    *string
		}{{"title", u.Title}, {"author", u.Author}, {"isbn", u.ISBN}} {
			if f.v != nil && strings.TrimSpace(*f.v) == "" {
				return model.Errorf(model.ErrInvalidArgument, "%s must not be blank", f.name)
			}
		}
		if u.Title != nil {
			b.Title = strings.TrimSpace(*u.Title)
		}
		if u.Author != nil {
			b.Author = strings.TrimSpace(*u.Author)
		}
		if u.ISBN != nil {
			b.ISBN = strings.TrimSpace(*u.ISBN)
		}
		if u.TotalCopies != nil {
			if err := b.SetTotalCopies(*u.TotalCopies); err != nil {
				return err
			}
		}
		return tx.UpdateBook(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "book updated", logger.Int64("bookId", id))
	return b, nil
}

func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockBook(ctx, id); err != nil {
			return err
		}
		return tx.DeleteBook(ctx, id)
	})
	if err == nil {
		s.logger.Info(ctx, "book deleted", logger.Int64("bookId", id))
	}
	return err
}

func (s *Service) CreateMember(ctx context.Context, name, email string) (*model.Member, error) {
	if err := validateMember(name, email); err != nil {
		return nil, err
	}
	m := &model.Member{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertMember(ctx, m)
	}); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "member created", logger.Int64("memberId", m.ID))
	return m, nil
}

func (s *Service) GetMember(ctx context.Context, id int64) (*model.Member, error) {
	var m *model.Member
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		m, err = tx.FindMember(ctx, id)
		return err
	})
	return m, err
}

func (s *Service) ListMembers(ctx context.Context) ([]model.Member, error) {
	var out []model.Member
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListMembers(ctx)
		return err
	})
	return out, err
}

func (s *Service) UpdateMember(ctx context.Context, id int64, u MemberUpdate) (*model.Member, error) {
	var m *model.Member
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if m, err = tx.FindMember(ctx, id); err != nil {
			return err
		}
		name, email := m.Name, m.Email
		if u.Name != nil {
			name = *u.Name
		}
		if u.Email != nil {
			email = *u.Email
		}
		if err := validateMember(name, email); err != nil {
			return err
		}
		m.Name, m.Email = strings.TrimSpace(name), strings.TrimSpace(email)
		return tx.UpdateMember(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "member updated", logger.Int64("memberId", id))
	return m, nil
}

func (s *Service) DeleteMember(ctx context.Context, id int64) error {
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.DeleteMember(ctx, id)
	})
	if err == nil {
		s.logger.Info(ctx, "member deleted", logger.Int64("memberId", id))
	}
	return err
}

func validateMember(name, email string) error {
	if err := required(map[string]string{"name": name, "email": email}); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return model.Errorf(model.ErrInvalidArgument, "email must be a valid address")
	}
	return nil
}

func required(fields map[string]string) error {
	for _, name := range []string{"title", "author", "isbn", "name", "email"} {
		v, ok := fields[name]
		if ok && strings.TrimSpace(v) == "" {
			return model.Errorf(model.ErrInvalidArgument, "%s must not be blank", name)
		}
	}
	return nil
}
