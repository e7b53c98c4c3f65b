package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/pkg/cache"
)

// Decision is the resolved access of one principal to one row.
type Decision struct {
	CanRead    bool
	CanComment bool
	CanUpdate  bool
	CanDelete  bool
	IsOwner    bool
	Level      entities.AccessLevel
}

// TokenProvider supplies the current grants-change token used to key cached
// decisions, so a grant write invalidates stale cache entries.
type TokenProvider interface {
	CurrentToken(ctx context.Context) (string, error)
}

// Resolver computes effective access to rows.
type Resolver struct {
	rows    repositories.RowRepository
	cascade *Cascade

	cache    cache.Cache   // optional decision cache
	tokens   TokenProvider // optional, required when cache is set
	cacheTTL time.Duration
}

// NewResolver creates a resolver without decision caching.
func NewResolver(rows repositories.RowRepository, cascade *Cascade) *Resolver {
	return &Resolver{rows: rows, cascade: cascade}
}

// NewResolverWithCache creates a resolver that caches decisions keyed by the
// grants-change token.
func NewResolverWithCache(rows repositories.RowRepository, cascade *Cascade, c cache.Cache, tokens TokenProvider, ttl time.Duration) *Resolver {
	return &Resolver{rows: rows, cascade: cascade, cache: c, tokens: tokens, cacheTTL: ttl}
}

func decisionCacheKey(rowID string, p *entities.Principal, token string) string {
	keyData := strings.Join([]string{
		rowID, p.UserID, p.TenantID,
		strings.Join(p.RoleIDs, ","), strings.Join(p.GroupIDs, ","),
		token,
	}, "|")
	hash := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(hash[:])
}

// Resolve computes the principal's effective access to the row. Candidate
// levels from every rule reduce to the single highest; the four capability
// booleans derive from that level, then the tenant-sharing cascade ORs in
// exactly the permission names listed on matching tenant links.
func (r *Resolver) Resolve(ctx context.Context, row *entities.Row, principal *entities.Principal) (Decision, error) {
	useCache := r.cache != nil && r.tokens != nil
	var cacheKey string
	if useCache {
		token, err := r.tokens.CurrentToken(ctx)
		if err != nil {
			useCache = false
		} else {
			cacheKey = decisionCacheKey(row.ID, principal, token)
			if cached, found := r.cache.Get(ctx, cacheKey); found {
				if d, ok := cached.(Decision); ok {
					return d, nil
				}
			}
		}
	}

	// Grant and cascade lookups are independent reads; issue them
	// concurrently.
	var (
		wg                   sync.WaitGroup
		grants               []*entities.RowPermission
		shared               map[string]bool
		grantsErr, sharedErr error
	)
	grants = row.Grants
	if grants == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grants, grantsErr = r.rows.ListGrants(ctx, row.ID)
		}()
	}
	if row.TenantID != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shared, sharedErr = r.cascade.SharedPermissions(ctx, principal, *row.TenantID)
		}()
	}
	wg.Wait()
	if grantsErr != nil {
		return Decision{}, fmt.Errorf("failed to load grants: %w", grantsErr)
	}
	if sharedErr != nil {
		return Decision{}, fmt.Errorf("failed to evaluate tenant sharing: %w", sharedErr)
	}

	level := entities.AccessNone
	for _, rule := range grantRules {
		level = entities.MaxAccess(level, rule.level(row, grants, principal))
	}

	owner := isOwner(row, principal)
	d := Decision{
		CanRead:    owner || level >= entities.AccessView,
		CanComment: owner || level >= entities.AccessComment,
		CanUpdate:  owner || level >= entities.AccessEdit,
		CanDelete:  owner || level >= entities.AccessDelete,
		IsOwner:    owner,
		Level:      level,
	}

	// Cross-tenant sharing grants exactly the listed permission names.
	if shared["view"] {
		d.CanRead = true
	}
	if shared["comment"] {
		d.CanComment = true
	}
	if shared["edit"] {
		d.CanUpdate = true
	}
	if shared["delete"] {
		d.CanDelete = true
	}

	if useCache {
		_ = r.cache.Set(ctx, cacheKey, d, r.cacheTTL)
	}
	return d, nil
}

// ScopingPredicate builds the reusable bulk visibility predicate: an OR of
// the row-selection clauses every rule contributes for this principal, plus
// a cascade clause when tenant sharing lists view on the target tenant. The
// clauses mirror the single-row rules exactly, so a paginated list and a
// single-row fetch never disagree.
func (r *Resolver) ScopingPredicate(ctx context.Context, targetTenantID string, principal *entities.Principal) (query.Node, error) {
	or := query.Or()
	for _, rule := range grantRules {
		or.Add(rule.clauses(principal)...)
	}

	if targetTenantID != "" {
		shared, err := r.cascade.SharedPermissions(ctx, principal, targetTenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate tenant sharing: %w", err)
		}
		if shared["view"] {
			or.Add(query.Eq("rows.tenant_id", targetTenantID))
		}
	}

	if or.Empty() {
		// No rule applies: select nothing rather than everything.
		return query.In("rows.id"), nil
	}
	return or, nil
}

// Require returns entities.ErrPermissionDenied unless the decision allows
// the requested level. It runs before any data leaves the core.
func Require(d Decision, level entities.AccessLevel) error {
	allowed := false
	switch level {
	case entities.AccessView:
		allowed = d.CanRead
	case entities.AccessComment:
		allowed = d.CanComment
	case entities.AccessEdit:
		allowed = d.CanUpdate
	case entities.AccessDelete:
		allowed = d.CanDelete
	case entities.AccessNone:
		allowed = true
	}
	if !allowed {
		return fmt.Errorf("%s access: %w", level, entities.ErrPermissionDenied)
	}
	return nil
}
