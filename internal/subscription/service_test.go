package subscription

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/kube_provisioner/internal/landlord"
	"github.com/victoralfred/kube_provisioner/internal/model"
	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/internal/uniqueness"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

type tenantMap map[string]*model.Tenant

func (m tenantMap) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	t, ok := m[id]
	if !ok {
		return nil, errors.NotFound("Tenant")
	}
	return t, nil
}

type clusterMap map[string]*model.Cluster

func (m clusterMap) GetByID(ctx context.Context, id string) (*model.Cluster, error) {
	c, ok := m[id]
	if !ok {
		return nil, errors.NotFound("Cluster")
	}
	return c, nil
}

// failingLandlords fails every Put while fail is set
type failingLandlords struct {
	landlord.Repository
	fail bool
}

func (f *failingLandlords) Put(ctx context.Context, l *model.Landlord) error {
	if f.fail {
		return stderrors.New("store unavailable")
	}
	return f.Repository.Put(ctx, l)
}

type fixture struct {
	kv        *kvstore.MemoryStore
	tenants   tenantMap
	landlords *failingLandlords
	repo      Repository
	svc       Service
}

func newFixture(t *testing.T, reservations bool) *fixture {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	now := time.Now().UTC()

	f := &fixture{
		kv: kv,
		tenants: tenantMap{
			"t1": {ID: "t1", BusinessName: "Acme", Status: model.TenantStatusActive},
			"t2": {ID: "t2", BusinessName: "Globex", Status: model.TenantStatusSuspended},
		},
		landlords: &failingLandlords{Repository: landlord.NewRepository(kv)},
		repo:      NewRepository(kv),
	}
	clusters := clusterMap{"c1": {ID: "c1", Name: "cluster-1", CreatedAt: now, UpdatedAt: now}}

	validator := uniqueness.NewValidator(f.repo, logger.Nop())
	if reservations {
		validator.WithReservations(kv, time.Minute)
	}
	propagator := propagation.NewPropagator(f.repo, f.landlords, f.tenants, logger.Nop())

	f.svc = NewService(Dependencies{
		Repository: f.repo,
		Tenants:    f.tenants,
		Clusters:   clusters,
		Landlords:  f.landlords,
		Validator:  validator,
		Propagator: propagator,
	}, logger.Nop())
	return f
}

func createRequest(tenantID, name string) CreateSubscriptionRequest {
	return CreateSubscriptionRequest{
		TenantID:           tenantID,
		ClusterID:          "c1",
		DomainName:         "https://" + name + ".com",
		TenantURL:          name,
		TenantAPIURL:       "https://api." + name + ".com",
		PackageID:          "pkg-basic",
		SubscriptionTypeID: "monthly",
		NumberOfStores:     3,
	}
}

func strPtr(s string) *string { return &s }

func TestService_CreateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("successfully create subscription and landlord", func(t *testing.T) {
		f := newFixture(t, false)
		req := createRequest("t1", "acme")
		req.DomainName = "  HTTPS://Acme.com "

		resp, err := f.svc.CreateSubscription(ctx, req)

		require.NoError(t, err)
		sub := resp.Subscription
		assert.NotEmpty(t, sub.ID)
		assert.Equal(t, "https://acme.com", sub.DomainName)
		assert.Equal(t, model.SubscriptionStatusActive, sub.Status)

		l := resp.Landlord
		assert.Equal(t, sub.ID, l.ID)
		assert.Equal(t, "Acme", l.Name)
		assert.Equal(t, sub.DomainName, l.URL)
		assert.Equal(t, sub.TenantURL, l.Domain)
		assert.Equal(t, sub.TenantAPIURL, l.APIURL)
		assert.Equal(t, 3, l.Outlets)
		assert.Equal(t, model.LandlordStatusActive, l.Status)
		assert.Empty(t, propagation.Verify(sub, l))
	})

	t.Run("fail when tenant or cluster missing", func(t *testing.T) {
		f := newFixture(t, false)

		_, err := f.svc.CreateSubscription(ctx, createRequest("nope", "acme"))
		assert.True(t, errors.IsNotFound(err))

		req := createRequest("t1", "acme")
		req.ClusterID = "nope"
		_, err = f.svc.CreateSubscription(ctx, req)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("fail for suspended tenant", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.CreateSubscription(ctx, createRequest("t2", "globex"))
		assert.Equal(t, ErrTenantNotProvisionable, err)
	})

	t.Run("fail on invalid request", func(t *testing.T) {
		f := newFixture(t, false)
		req := createRequest("t1", "acme")
		req.PackageID = "  "
		_, err := f.svc.CreateSubscription(ctx, req)
		assert.True(t, errors.IsValidation(err))

		req = createRequest("t1", "acme")
		req.NumberOfStores = -1
		_, err = f.svc.CreateSubscription(ctx, req)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestService_CreateSubscription_Uniqueness(t *testing.T) {
	for _, reservations := range []bool{false, true} {
		name := "scan only"
		if reservations {
			name = "with reservations"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, reservations)

			first, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
			require.NoError(t, err)

			dup := createRequest("t1", "other")
			dup.DomainName = "HTTPS://ACME.COM"
			_, err = f.svc.CreateSubscription(ctx, dup)
			require.Error(t, err)
			assert.True(t, errors.IsConflict(err))
			assert.Contains(t, errors.From(err).Conflicts[0], first.Subscription.ID)

			subs, err := f.repo.ListByTenant(ctx, "t1")
			require.NoError(t, err)
			assert.Len(t, subs, 1, "rejected create leaves nothing behind")

			_, err = f.svc.CreateSubscription(ctx, createRequest("t1", "other"))
			assert.NoError(t, err, "released reservations must not block a clean create")
		})
	}
}

func TestService_UpdateSubscription_MovesUniqueValue(t *testing.T) {
	for _, reservations := range []bool{false, true} {
		ctx := context.Background()
		f := newFixture(t, reservations)

		req := createRequest("t1", "a")
		req.DomainName = "https://a.com"
		s1, err := f.svc.CreateSubscription(ctx, req)
		require.NoError(t, err)

		req = createRequest("t1", "b")
		req.DomainName = "https://a.com"
		_, err = f.svc.CreateSubscription(ctx, req)
		require.True(t, errors.IsConflict(err))

		resp, err := f.svc.UpdateSubscription(ctx, s1.Subscription.ID, UpdateSubscriptionRequest{DomainName: strPtr("https://b.com")})
		require.NoError(t, err)
		assert.Equal(t, "https://b.com", resp.Subscription.DomainName)
		assert.Equal(t, "https://b.com", resp.Landlord.URL)

		_, err = f.svc.CreateSubscription(ctx, req)
		assert.NoError(t, err, "a.com is free again (reservations=%v)", reservations)
	}
}

func TestService_UpdateSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("mirror status and package", func(t *testing.T) {
		f := newFixture(t, false)
		created, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
		require.NoError(t, err)

		status := model.SubscriptionStatusFailed
		resp, err := f.svc.UpdateSubscription(ctx, created.Subscription.ID, UpdateSubscriptionRequest{
			PackageID: strPtr("pkg-pro"),
			Status:    &status,
		})

		require.NoError(t, err)
		assert.Equal(t, "pkg-pro", resp.Landlord.PackageID)
		assert.Equal(t, model.LandlordStatusSuspended, resp.Landlord.Status)
		assert.Empty(t, propagation.Verify(resp.Subscription, resp.Landlord))
	})

	t.Run("own values do not conflict", func(t *testing.T) {
		f := newFixture(t, true)
		created, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
		require.NoError(t, err)

		_, err = f.svc.UpdateSubscription(ctx, created.Subscription.ID, UpdateSubscriptionRequest{
			DomainName: strPtr("HTTPS://ACME.COM"),
		})
		assert.NoError(t, err)
	})

	t.Run("not found before validation", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.UpdateSubscription(ctx, "missing", UpdateSubscriptionRequest{})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("empty update", func(t *testing.T) {
		f := newFixture(t, false)
		created, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
		require.NoError(t, err)

		_, err = f.svc.UpdateSubscription(ctx, created.Subscription.ID, UpdateSubscriptionRequest{})
		assert.Equal(t, ErrEmptyUpdate, err)
	})

	t.Run("cannot reactivate under suspended tenant", func(t *testing.T) {
		f := newFixture(t, false)
		created, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
		require.NoError(t, err)
		f.tenants["t1"].Status = model.TenantStatusSuspended

		status := model.SubscriptionStatusActive
		_, err = f.svc.UpdateSubscription(ctx, created.Subscription.ID, UpdateSubscriptionRequest{Status: &status})
		assert.Equal(t, ErrTenantNotProvisionable, err)
	})
}

func TestService_LandlordFailureIsRepairedByUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.landlords.fail = true

	_, err := f.svc.CreateSubscription(ctx, createRequest("t1", "acme"))
	require.Error(t, err)
	assert.True(t, errors.IsInternal(err))

	subs, err := f.repo.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, subs, 1, "subscription write is not rolled back")
	sub := subs[0]

	_, err = f.svc.GetLandlord(ctx, sub.ID)
	assert.True(t, errors.IsNotFound(err))

	f.landlords.fail = false
	resp, err := f.svc.UpdateSubscription(ctx, sub.ID, UpdateSubscriptionRequest{NumberOfStores: &sub.NumberOfStores})
	require.NoError(t, err)
	assert.Empty(t, propagation.Verify(resp.Subscription, resp.Landlord))

	l, err := f.svc.GetLandlord(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", l.Name)
}

func TestService_CreateRetryWithClientID(t *testing.T) {
	for _, reservations := range []bool{false, true} {
		ctx := context.Background()
		f := newFixture(t, reservations)
		f.landlords.fail = true

		req := createRequest("t1", "acme")
		req.ID = uuid.New().String()
		_, err := f.svc.CreateSubscription(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.IsInternal(err))

		f.landlords.fail = false
		resp, err := f.svc.CreateSubscription(ctx, req)
		require.NoError(t, err, "retry completes the create (reservations=%v)", reservations)
		assert.Equal(t, req.ID, resp.Subscription.ID)
		assert.Equal(t, "Acme", resp.Landlord.Name)
		assert.Empty(t, propagation.Verify(resp.Subscription, resp.Landlord))

		again, err := f.svc.CreateSubscription(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, resp.Subscription.ID, again.Subscription.ID)

		subs, err := f.repo.ListByTenant(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, subs, 1)

		other := createRequest("t1", "other")
		other.ID = req.ID
		_, err = f.svc.CreateSubscription(ctx, other)
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err))
	}
}

func TestService_ListByTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.ListByTenant(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))

	subs, err := f.svc.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestHandler_Subscriptions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, false)
	router := gin.New()
	NewHandler(f.svc).RegisterRoutes(router.Group("/api/v1"))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	body := `{"tenant_id":"t1","cluster_id":"c1","domain_name":"https://acme.com","tenant_url":"acme",` +
		`"tenant_api_url":"https://api.acme.com","package_id":"pkg","subscription_type_id":"monthly","number_of_stores":2}`

	w := do(http.MethodPost, "/api/v1/subscriptions", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"landlord"`)

	w = do(http.MethodPost, "/api/v1/subscriptions", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"conflicts"`)

	w = do(http.MethodGet, "/api/v1/tenants/t1/subscriptions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = do(http.MethodPut, "/api/v1/subscriptions/missing", `{"package_id":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(http.MethodPost, "/api/v1/subscriptions", `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
