package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/official-relay/internal/domain"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
	s.Require().NoError(s.store.Staff().Create(s.ctx, &domain.StaffMember{OwnerIdentity: "mp-owner", Name: "Rider", Active: true}))
}

func (s *MemoryStoreSuite) TestPendingLookup() {
	s.Run("finds pending code", func() {
		code := &domain.BindingCode{Code: "ABC123", OwnerIdentity: "mp-owner"}
		s.Require().NoError(s.store.BindingCodes().Create(s.ctx, code))

		found, err := s.store.BindingCodes().GetPendingByCode(s.ctx, "ABC123")
		s.Require().NoError(err)
		s.Equal(code.ID, found.ID)
		s.Equal("mp-owner", found.OwnerIdentity)
	})

	s.Run("ignores expired codes", func() {
		past := time.Now().Add(-time.Minute)
		s.Require().NoError(s.store.BindingCodes().Create(s.ctx, &domain.BindingCode{Code: "OLD", OwnerIdentity: "mp-owner", ExpiresAt: &past}))

		_, err := s.store.BindingCodes().GetPendingByCode(s.ctx, "OLD")
		s.True(IsNotFound(err))
	})

	s.Run("unknown code", func() {
		_, err := s.store.BindingCodes().GetPendingByCode(s.ctx, "missing")
		s.True(IsNotFound(err))
	})
}

func (s *MemoryStoreSuite) TestConsumedCodeIsNeverMatchedAgain() {
	code := &domain.BindingCode{Code: "ONCE", OwnerIdentity: "mp-owner"}
	s.Require().NoError(s.store.BindingCodes().Create(s.ctx, code))

	s.Require().NoError(s.store.BindingCodes().MarkUsed(s.ctx, code.ID, "official-1", time.Now()))
	s.ErrorIs(s.store.BindingCodes().MarkUsed(s.ctx, code.ID, "official-2", time.Now()), ErrCodeConsumed)

	for i := 0; i < 3; i++ {
		_, err := s.store.BindingCodes().GetPendingByCode(s.ctx, "ONCE")
		s.True(IsNotFound(err))
	}
}

func (s *MemoryStoreSuite) TestWithinTxCommits() {
	code := &domain.BindingCode{Code: "TX1", OwnerIdentity: "mp-owner"}
	s.Require().NoError(s.store.BindingCodes().Create(s.ctx, code))

	err := s.store.WithinTx(s.ctx, func(codes BindingCodeRepository, staff StaffRepository) error {
		if err := codes.MarkUsed(s.ctx, code.ID, "official-1", time.Now()); err != nil {
			return err
		}
		return staff.LinkOfficialIdentity(s.ctx, "mp-owner", "official-1", time.Now())
	})
	s.Require().NoError(err)

	staff, err := s.store.Staff().GetByOwnerIdentity(s.ctx, "mp-owner")
	s.Require().NoError(err)
	s.True(staff.Bound())
	s.Equal("official-1", *staff.OfficialOpenID)
}

func (s *MemoryStoreSuite) TestWithinTxRollsBack() {
	code := &domain.BindingCode{Code: "TX2", OwnerIdentity: "nobody"}
	s.Require().NoError(s.store.BindingCodes().Create(s.ctx, code))

	err := s.store.WithinTx(s.ctx, func(codes BindingCodeRepository, staff StaffRepository) error {
		if err := codes.MarkUsed(s.ctx, code.ID, "official-1", time.Now()); err != nil {
			return err
		}
		return staff.LinkOfficialIdentity(s.ctx, "nobody", "official-1", time.Now())
	})
	s.Require().Error(err)
	s.True(IsNotFound(err))

	found, err := s.store.BindingCodes().GetPendingByCode(s.ctx, "TX2")
	s.Require().NoError(err, "code must still be pending after a failed transaction")
	s.False(found.Used)
}

func (s *MemoryStoreSuite) TestLinkUnknownStaff() {
	err := s.store.Staff().LinkOfficialIdentity(s.ctx, "ghost", "official", time.Now())
	s.True(IsNotFound(err))
	s.False(errors.Is(err, ErrCodeConsumed))
}
