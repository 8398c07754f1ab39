package resolver_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/bus-seat-checkout/internal/model"
	"github.com/iliyamo/bus-seat-checkout/internal/resolver"
)

type mockLookup struct{ mock.Mock }

func (m *mockLookup) TicketByTransaction(ctx context.Context, pidx, order string) (string, error) {
	args := m.Called(ctx, pidx, order)
	return args.String(0), args.Error(1)
}

func (m *mockLookup) TicketByID(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockLookup) TicketByOrder(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var errDown = errors.New("backend down")

func TestResolve_TransactionWins(t *testing.T) {
	m := &mockLookup{}
	m.On("TicketByTransaction", mock.Anything, "TX1", "ORD-1").Return("BK-1", nil).Once()

	ref := resolver.New(m, "BK-", quietLogger()).Resolve(context.Background(), resolver.Lookup{
		Pidx: "TX1", PurchaseOrderID: "ORD-1", TicketID: "T1",
	})

	assert.Equal(t, "BK-1", ref)
	m.AssertNotCalled(t, "TicketByID", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "TicketByOrder", mock.Anything, mock.Anything)
}

func TestResolve_FallsThroughErrorsAndEmpties(t *testing.T) {
	m := &mockLookup{}
	m.On("TicketByTransaction", mock.Anything, "TX1", "ORD-1").Return("", errDown)
	m.On("TicketByID", mock.Anything, "T1").Return("", nil)
	m.On("TicketByOrder", mock.Anything, "ORD-1").Return("BK-3", nil)

	ref := resolver.New(m, "BK-", quietLogger()).Resolve(context.Background(), resolver.Lookup{
		Pidx: "TX1", PurchaseOrderID: "ORD-1", TicketID: "T1",
	})

	assert.Equal(t, "BK-3", ref)
	m.AssertExpectations(t)
}

func TestResolve_OnlyOrderIDLeft(t *testing.T) {
	m := &mockLookup{}
	m.On("TicketByTransaction", mock.Anything, "TX1", "ORD-7").Return("", errDown)
	m.On("TicketByOrder", mock.Anything, "ORD-7").Return("", errDown)

	ref := resolver.New(m, "BK-", quietLogger()).Resolve(context.Background(), resolver.Lookup{
		Pidx: "TX1", PurchaseOrderID: "ORD-7",
	})

	assert.Equal(t, "ORD-7", ref)
}

func TestResolve_CachedBookingIDBeatsOrderEcho(t *testing.T) {
	m := &mockLookup{}
	m.On("TicketByOrder", mock.Anything, "ORD-2").Return("", errDown)

	ref := resolver.New(m, "BK-", quietLogger()).Resolve(context.Background(), resolver.Lookup{
		PaymentData: &model.PaymentData{BookingID: "BK-77", OrderID: "ORD-2"},
	})

	assert.Equal(t, "BK-77", ref)
	m.AssertNotCalled(t, "TicketByTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_CachedBookingIDNeedsPrefix(t *testing.T) {
	ref := resolver.New(&mockLookup{}, "BK-", quietLogger()).ResolveCached(context.Background(), resolver.Lookup{
		PurchaseOrderID: "ORD-9",
		PaymentData:     &model.PaymentData{BookingID: "draft-1"},
	})

	assert.Equal(t, "ORD-9", ref)
}

func TestResolve_NothingToGoOn(t *testing.T) {
	ref := resolver.New(&mockLookup{}, "BK-", quietLogger()).Resolve(context.Background(), resolver.Lookup{})

	assert.Empty(t, ref)
}

func TestFirstNonEmpty_TrimsAndOrders(t *testing.T) {
	var calls []string
	step := func(name, out string) resolver.Step {
		return resolver.Step{Name: name, Strategy: func(context.Context, resolver.Lookup) (string, error) {
			calls = append(calls, name)
			return out, nil
		}}
	}

	ref, err := resolver.FirstNonEmpty(quietLogger(), step("a", "  "), step("b", " X "), step("c", "Y"))(context.Background(), resolver.Lookup{})

	assert.NoError(t, err)
	assert.Equal(t, "X", ref)
	assert.Equal(t, []string{"a", "b"}, calls)
}
