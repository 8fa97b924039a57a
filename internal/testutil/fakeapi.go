package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"

	"github.com/nhle/mailroom/internal/model"
)

// Route names identify fake API endpoints for FailNext, Block and
// CallCount.
const (
	RouteListMail     = "GET /api/mails"
	RouteRecipients   = "GET /api/mails/recipients"
	RouteGetMail      = "GET /api/mails/:key"
	RouteRead         = "PATCH /api/mails/:key/read"
	RouteStar         = "PATCH /api/mails/:key/star"
	RouteDelete       = "DELETE /api/mails/:key"
	RouteSync         = "POST /api/mails/sync"
	RouteThreads      = "GET /api/threads"
	RouteThread       = "GET /api/threads/:id"
	RouteSend         = "POST /api/send"
	RouteGetSettings  = "GET /api/settings"
	RoutePutSettings  = "PUT /api/settings"
	RouteDomains      = "GET /api/domains"
	RouteCreateDomain = "POST /api/domains"
	RouteUpdateDomain = "PUT /api/domains/:id"
	RouteDeleteDomain = "DELETE /api/domains/:id"
)

// FakeToken is the bearer token the fake API accepts by default.
const FakeToken = "test-token"

type failure struct {
	status  int
	message string
}

// FakeAPI is an in-memory mail API served over HTTP for tests. Mail is
// kept newest first, as the real service returns it.
type FakeAPI struct {
	// Token is the accepted bearer token.
	Token string

	server *httptest.Server

	mu         sync.Mutex
	mails      []model.MailRecord
	groups     []model.ThreadGroup
	threads    map[string]model.Thread
	settings   model.UserSettings
	domains    []model.Domain
	syncQueue  [][]model.MailRecord
	sent       []model.SendRequest
	failures   map[string][]failure
	gates      map[string]*gate
	calls      map[string]int
	requestIDs []string
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// NewFakeAPI starts a fake mail API. It is shut down when the test
// completes.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		Token:    FakeToken,
		threads:  make(map[string]model.Thread),
		failures: make(map[string][]failure),
		gates:    make(map[string]*gate),
		calls:    make(map[string]int),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	f.routes(app)

	f.server = httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(f.server.Close)

	return f
}

// URL returns the API root.
func (f *FakeAPI) URL() string {
	return f.server.URL
}

// AddMails appends records after the existing ones.
func (f *FakeAPI) AddMails(mails ...model.MailRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mails = append(f.mails, mails...)
}

// QueueSync makes the next sync call ingest mails, placing them ahead of
// existing records. A sync with nothing queued ingests nothing.
func (f *FakeAPI) QueueSync(mails ...model.MailRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncQueue = append(f.syncQueue, mails)
}

// SetThread stores a thread and lists it among the thread groups.
func (f *FakeAPI) SetThread(th model.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.threads[th.ThreadID]; !ok {
		f.groups = append(f.groups, model.ThreadGroup{ParentUUID: th.ThreadID, GroupName: th.GroupName})
	}
	f.threads[th.ThreadID] = th
}

// SetSettings replaces the stored settings.
func (f *FakeAPI) SetSettings(s model.UserSettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
}

// Settings returns the stored settings.
func (f *FakeAPI) Settings() model.UserSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// AddDomains appends domains as given, IDs included.
func (f *FakeAPI) AddDomains(domains ...model.Domain) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains = append(f.domains, domains...)
}

// Mail returns the stored record for key.
func (f *FakeAPI) Mail(key string) (model.MailRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mails {
		if m.S3Key == key {
			return m, true
		}
	}
	return model.MailRecord{}, false
}

// Sent returns the send requests received so far.
func (f *FakeAPI) Sent() []model.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SendRequest(nil), f.sent...)
}

// CallCount returns how many authenticated requests reached route.
func (f *FakeAPI) CallCount(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls returns the number of authenticated requests received.
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// RequestIDs returns the X-Request-ID headers seen, in arrival order.
func (f *FakeAPI) RequestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

// FailNext makes the next request to route fail with status. A non-empty
// message is returned as {"error": message}; otherwise the body is plain
// text.
func (f *FakeAPI) FailNext(route string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = append(f.failures[route], failure{status: status, message: message})
}

// Block holds the next request to route until release is called. entered
// is closed once that request has arrived.
func (f *FakeAPI) Block(route string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}

	f.mu.Lock()
	f.gates[route] = g
	f.mu.Unlock()

	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

func (f *FakeAPI) routes(app *fiber.App) {
	api := app.Group("/api")

	// Registered before /mails/:key so that it is not taken as a key.
	f.handle(api, RouteRecipients, "/mails/recipients", f.listRecipients)
	f.handle(api, RouteListMail, "/mails", f.listMail)
	f.handle(api, RouteSync, "/mails/sync", f.sync)
	f.handle(api, RouteGetMail, "/mails/:key", f.getMail)
	f.handle(api, RouteRead, "/mails/:key/read", f.setRead)
	f.handle(api, RouteStar, "/mails/:key/star", f.setStar)
	f.handle(api, RouteDelete, "/mails/:key", f.deleteMail)

	f.handle(api, RouteThreads, "/threads", f.listThreads)
	f.handle(api, RouteThread, "/threads/:id", f.getThread)
	f.handle(api, RouteSend, "/send", f.send)

	f.handle(api, RouteGetSettings, "/settings", f.getSettings)
	f.handle(api, RoutePutSettings, "/settings", f.putSettings)
	f.handle(api, RouteDomains, "/domains", f.listDomains)
	f.handle(api, RouteCreateDomain, "/domains", f.createDomain)
	f.handle(api, RouteUpdateDomain, "/domains/:id", f.updateDomain)
	f.handle(api, RouteDeleteDomain, "/domains/:id", f.deleteDomain)
}

// handle registers h for route, wrapped with the auth check, call
// counting, blocking and injected failures.
func (f *FakeAPI) handle(router fiber.Router, route, path string, h fiber.Handler) {
	method := route[:strings.IndexByte(route, ' ')]

	router.Add(method, path, func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer "+f.Token {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		f.mu.Lock()
		f.calls[route]++
		f.requestIDs = append(f.requestIDs, strings.Clone(c.Get("X-Request-ID")))
		g := f.gates[route]
		delete(f.gates, route)
		var fail *failure
		if queued := f.failures[route]; len(queued) > 0 {
			fail = &queued[0]
			f.failures[route] = queued[1:]
		}
		f.mu.Unlock()

		if g != nil {
			close(g.entered)
			<-g.release
		}

		if fail != nil {
			if fail.message == "" {
				return c.Status(fail.status).SendString("internal error")
			}
			return c.Status(fail.status).JSON(fiber.Map{"error": fail.message})
		}

		return h(c)
	})
}

func (f *FakeAPI) listMail(c *fiber.Ctx) error {
	recipient := strings.ToLower(c.Query("recipient"))
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", model.DefaultPerPage)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = model.DefaultPerPage
	}

	f.mu.Lock()
	var matched []model.MailRecord
	for _, m := range f.mails {
		if recipient == "" || strings.Contains(strings.ToLower(m.To), recipient) {
			matched = append(matched, m)
		}
	}
	f.mu.Unlock()

	total := len(matched)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	// The real service reports zero pages for an empty mailbox.
	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	return c.JSON(model.MailPage{
		Mails:      append([]model.MailRecord{}, matched[start:end]...),
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

func (f *FakeAPI) listRecipients(c *fiber.Ctx) error {
	f.mu.Lock()
	seen := make(map[string]bool)
	recipients := []string{}
	for _, m := range f.mails {
		for _, r := range strings.Split(m.To, ",") {
			r = strings.TrimSpace(r)
			if r != "" && !seen[r] {
				seen[r] = true
				recipients = append(recipients, r)
			}
		}
	}
	f.mu.Unlock()

	return c.JSON(fiber.Map{"recipients": recipients})
}

func (f *FakeAPI) getMail(c *fiber.Ctx) error {
	key, ok := param(c, "key")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad key"})
	}
	m, ok := f.Mail(key)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mail not found"})
	}
	return c.JSON(m)
}

func (f *FakeAPI) setRead(c *fiber.Ctx) error {
	var body struct {
		IsRead bool `json:"is_read"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	return f.update(c, func(m *model.MailRecord) { m.IsRead = body.IsRead })
}

func (f *FakeAPI) setStar(c *fiber.Ctx) error {
	var body struct {
		IsStarred bool `json:"is_starred"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	return f.update(c, func(m *model.MailRecord) { m.IsStarred = body.IsStarred })
}

func (f *FakeAPI) update(c *fiber.Ctx, apply func(m *model.MailRecord)) error {
	key, ok := param(c, "key")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad key"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.mails {
		if f.mails[i].S3Key == key {
			apply(&f.mails[i])
			return c.JSON(fiber.Map{"status": "ok"})
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mail not found"})
}

func (f *FakeAPI) deleteMail(c *fiber.Ctx) error {
	key, ok := param(c, "key")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad key"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.mails {
		if f.mails[i].S3Key == key {
			f.mails = append(f.mails[:i], f.mails[i+1:]...)
			return c.JSON(fiber.Map{"status": "deleted"})
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mail not found"})
}

func (f *FakeAPI) sync(c *fiber.Ctx) error {
	f.mu.Lock()
	var batch []model.MailRecord
	if len(f.syncQueue) > 0 {
		batch = f.syncQueue[0]
		f.syncQueue = f.syncQueue[1:]
		f.mails = append(append([]model.MailRecord{}, batch...), f.mails...)
	}
	f.mu.Unlock()

	return c.JSON(model.SyncResult{Synced: len(batch)})
}

func (f *FakeAPI) listThreads(c *fiber.Ctx) error {
	f.mu.Lock()
	groups := append([]model.ThreadGroup{}, f.groups...)
	f.mu.Unlock()
	return c.JSON(groups)
}

func (f *FakeAPI) getThread(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad id"})
	}

	f.mu.Lock()
	th, ok := f.threads[id]
	f.mu.Unlock()

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "thread not found"})
	}
	return c.JSON(th)
}

func (f *FakeAPI) send(c *fiber.Ctx) error {
	var req model.SendRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	codes := make([]string, len(req.To))
	for i := range codes {
		codes[i] = uuid.NewString()[:8]
	}

	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	return c.JSON(model.SendResult{ThreadID: threadID, ManagementCodes: codes})
}

func (f *FakeAPI) getSettings(c *fiber.Ctx) error {
	return c.JSON(f.Settings())
}

func (f *FakeAPI) putSettings(c *fiber.Ctx) error {
	var s model.UserSettings
	if err := json.Unmarshal(c.Body(), &s); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	f.SetSettings(s)
	return c.JSON(s)
}

func (f *FakeAPI) listDomains(c *fiber.Ctx) error {
	f.mu.Lock()
	domains := append([]model.Domain{}, f.domains...)
	f.mu.Unlock()
	return c.JSON(domains)
}

func (f *FakeAPI) createDomain(c *fiber.Ctx) error {
	var d model.Domain
	if err := json.Unmarshal(c.Body(), &d); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	d.ID = uuid.NewString()

	f.mu.Lock()
	f.domains = append(f.domains, d)
	f.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(d)
}

func (f *FakeAPI) updateDomain(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad id"})
	}
	var d model.Domain
	if err := json.Unmarshal(c.Body(), &d); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	d.ID = id

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.domains {
		if f.domains[i].ID == id {
			f.domains[i] = d
			return c.JSON(d)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "domain not found"})
}

func (f *FakeAPI) deleteDomain(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad id"})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.domains {
		if f.domains[i].ID == id {
			f.domains = append(f.domains[:i], f.domains[i+1:]...)
			return c.SendStatus(fiber.StatusNoContent)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "domain not found"})
}

// param returns the unescaped path parameter name. Fiber hands back the
// raw segment and reuses its buffer, so the value is copied.
func param(c *fiber.Ctx, name string) (string, bool) {
	v, err := url.PathUnescape(c.Params(name))
	if err != nil {
		return "", false
	}
	return strings.Clone(v), true
}
