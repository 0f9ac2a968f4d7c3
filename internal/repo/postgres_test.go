package repo

import (
	"context"
	"database/sql"
	"errors"
	"storefront/internal/database"
	"storefront/internal/domain"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sql.DB

	orders        OrderRepo
	conversations ConversationRepo
	subscriptions SubscriptionRepo
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres integration tests need docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	ctr, err := postgres.Run(s.ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = ctr

	dsn, err := ctr.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = database.NewPostgres(s.ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(s.ctx, s.db))
	// applying twice must be harmless
	s.Require().NoError(database.Migrate(s.ctx, s.db))

	s.orders = NewOrderRepo(s.db)
	s.conversations = NewConversationRepo(s.db)
	s.subscriptions = NewSubscriptionRepo(s.db)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresSuite) newOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &domain.Order{
		ID:          uuid.New(),
		OrderNumber: domain.NewOrderNumber(now),
		CustomerID:  uuid.New(),
		PhoneNumber: "254712345678",
		Total:       1500,
		Status:      domain.OrderPending,
		Payment:     domain.PaymentUnset,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.orders.CreateOrder(s.ctx, o))
	return o
}

func (s *PostgresSuite) beginPayment(o *domain.Order, checkoutID string) {
	t, err := o.BeginPayment(checkoutID)
	s.Require().NoError(err)
	applied, err := s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
	s.Require().NoError(err)
	s.Require().True(applied)
}

func successEvent(checkoutID string) domain.CallbackEvent {
	return domain.CallbackEvent{
		CheckoutRequestID: checkoutID,
		ResultDesc:        "The service request is processed successfully.",
		Metadata: &domain.CallbackMetadata{
			Amount:          "1500",
			ReceiptNumber:   "NLJ7RT61SV",
			TransactionDate: "20191219102115",
			PhoneNumber:     "254712345678",
		},
	}
}

func (s *PostgresSuite) TestCreateAndFind() {
	o := s.newOrder()
	items := []domain.OrderItem{
		{ID: uuid.New(), OrderID: o.ID, ProductID: uuid.New(), Quantity: 1, UnitPrice: 1000},
		{ID: uuid.New(), OrderID: o.ID, ProductID: uuid.New(), Quantity: 2, UnitPrice: 250},
	}
	s.Require().NoError(s.orders.CreateOrderItems(s.ctx, items))

	got, err := s.orders.FindById(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.OrderNumber, got.OrderNumber)
	s.Equal(domain.OrderPending, got.Status)
	s.Equal(domain.PaymentUnset, got.Payment)
	s.Nil(got.CheckoutRequestID)

	listed, err := s.orders.ListItems(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Len(listed, 2)

	_, err = s.orders.FindById(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrOrderNotFound)
	_, err = s.orders.FindByCheckoutRequestID(s.ctx, "ws_CO_missing")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *PostgresSuite) TestItemsAreAllOrNothing() {
	o := s.newOrder()
	items := []domain.OrderItem{
		{ID: uuid.New(), OrderID: o.ID, ProductID: uuid.New(), Quantity: 1, UnitPrice: 1000},
		{ID: uuid.New(), OrderID: o.ID, ProductID: uuid.New(), Quantity: 0, UnitPrice: 250},
	}
	s.Error(s.orders.CreateOrderItems(s.ctx, items))

	listed, err := s.orders.ListItems(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Empty(listed)

	s.Require().NoError(s.orders.DeleteOrder(s.ctx, o.ID))
	_, err = s.orders.FindById(s.ctx, o.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *PostgresSuite) TestPaymentTransitionIsConditional() {
	o := s.newOrder()
	checkoutID := "ws_CO_" + uuid.NewString()
	s.beginPayment(o, checkoutID)

	// a second pending write for the same order loses
	applied, err := s.orders.ApplyPaymentTransition(s.ctx, domain.PaymentTransition{
		OrderID: o.ID, From: domain.PaymentUnset, To: domain.PaymentPending,
	}, "ws_CO_other")
	s.Require().NoError(err)
	s.False(applied)

	pending, err := s.orders.FindByCheckoutRequestID(s.ctx, checkoutID)
	s.Require().NoError(err)
	t, err := pending.SettlePayment(successEvent(checkoutID))
	s.Require().NoError(err)

	applied, err = s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
	s.Require().NoError(err)
	s.True(applied)

	applied, err = s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
	s.Require().NoError(err)
	s.False(applied)

	paid, err := s.orders.FindById(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.PaymentPaid, paid.Payment)
	s.Equal(domain.OrderApproved, paid.Status)
	s.Equal("NLJ7RT61SV", domain.StringValue(paid.ReceiptNumber))
	s.Equal("20191219102115", domain.StringValue(paid.TransactionDate))
	s.Nil(paid.FailureReason)
}

func (s *PostgresSuite) TestConcurrentSettlementAppliesOnce() {
	o := s.newOrder()
	checkoutID := "ws_CO_" + uuid.NewString()
	s.beginPayment(o, checkoutID)

	pending, err := s.orders.FindById(s.ctx, o.ID)
	s.Require().NoError(err)
	t, err := pending.SettlePayment(successEvent(checkoutID))
	s.Require().NoError(err)

	var applied atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
			if err == nil && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, applied.Load())
}

func (s *PostgresSuite) TestCorrelationIDIsUnique() {
	first := s.newOrder()
	second := s.newOrder()
	checkoutID := "ws_CO_" + uuid.NewString()
	s.beginPayment(first, checkoutID)

	t, err := second.BeginPayment(checkoutID)
	s.Require().NoError(err)
	applied, err := s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
	s.False(applied)
	s.True(errors.Is(err, domain.ErrCorrelationConflict), "got %v", err)
}

func (s *PostgresSuite) TestFailureDoesNotApprove() {
	o := s.newOrder()
	checkoutID := "ws_CO_" + uuid.NewString()
	s.beginPayment(o, checkoutID)

	pending, err := s.orders.FindById(s.ctx, o.ID)
	s.Require().NoError(err)
	t, err := pending.SettlePayment(domain.CallbackEvent{
		CheckoutRequestID: checkoutID,
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	s.Require().NoError(err)
	applied, err := s.orders.ApplyPaymentTransition(s.ctx, t, checkoutID)
	s.Require().NoError(err)
	s.True(applied)

	failed, err := s.orders.FindById(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.PaymentFailed, failed.Payment)
	s.Equal(domain.OrderPending, failed.Status)
	s.Equal("Request cancelled by user", domain.StringValue(failed.FailureReason))
	s.Nil(failed.ReceiptNumber)
}

func (s *PostgresSuite) TestUpdateOrderStatus() {
	o := s.newOrder()

	applied, err := s.orders.UpdateOrderStatus(s.ctx, o.ID, domain.OrderPending, domain.OrderCancelled)
	s.Require().NoError(err)
	s.True(applied)

	applied, err = s.orders.UpdateOrderStatus(s.ctx, o.ID, domain.OrderPending, domain.OrderApproved)
	s.Require().NoError(err)
	s.False(applied)
}

func (s *PostgresSuite) insertAgent(active bool) uuid.UUID {
	id := uuid.New()
	_, err := s.db.ExecContext(s.ctx, "INSERT INTO agents (id, name, active) VALUES ($1, $2, $3)", id, "agent-"+id.String()[:8], active)
	s.Require().NoError(err)
	return id
}

func (s *PostgresSuite) TestConversations() {
	agent := s.insertAgent(true)
	assigned := uuid.New()
	unassigned := uuid.New()
	_, err := s.db.ExecContext(s.ctx,
		"INSERT INTO conversations (id, customer_id, assigned_agent_id) VALUES ($1, $2, $3), ($4, $5, NULL)",
		assigned, uuid.New(), agent, unassigned, uuid.New())
	s.Require().NoError(err)

	conv, err := s.conversations.FindConversation(s.ctx, assigned)
	s.Require().NoError(err)
	s.Require().NotNil(conv.AssignedAgentID)
	s.Equal(agent, *conv.AssignedAgentID)

	conv, err = s.conversations.FindConversation(s.ctx, unassigned)
	s.Require().NoError(err)
	s.Nil(conv.AssignedAgentID)

	_, err = s.conversations.FindConversation(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrConversationNotFound)

	agents, err := s.conversations.ListActiveAgents(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(agents, 1)
	s.True(agents[0].Active)
}

func (s *PostgresSuite) TestSubscriptions() {
	alice := s.insertAgent(true)
	bob := s.insertAgent(true)
	endpoint := "https://push.example.com/" + uuid.NewString()

	s.Require().NoError(s.subscriptions.Upsert(s.ctx, &domain.PushSubscription{
		Endpoint: endpoint, P256dh: "key-1", Auth: "auth-1", AgentID: alice,
	}))
	// same endpoint re-registered by another agent replaces the row
	s.Require().NoError(s.subscriptions.Upsert(s.ctx, &domain.PushSubscription{
		Endpoint: endpoint, P256dh: "key-2", Auth: "auth-2", AgentID: bob,
	}))

	subs, err := s.subscriptions.ListByAgents(s.ctx, []uuid.UUID{alice})
	s.Require().NoError(err)
	s.Empty(subs)

	subs, err = s.subscriptions.ListByAgents(s.ctx, []uuid.UUID{alice, bob})
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Equal("key-2", subs[0].P256dh)
	s.Equal(bob, subs[0].AgentID)

	s.Require().NoError(s.subscriptions.DeleteByEndpoint(s.ctx, endpoint))
	s.Require().NoError(s.subscriptions.DeleteByEndpoint(s.ctx, endpoint))
	subs, err = s.subscriptions.ListByAgents(s.ctx, []uuid.UUID{bob})
	s.Require().NoError(err)
	s.Empty(subs)
}
