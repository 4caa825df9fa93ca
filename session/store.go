package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/util"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
)

const (
	sessionFile      = "session.json"
	conversationFile = "conversation.json"
	documentFile     = "living-document.json"
	metadataFile     = "metadata-index.json"
	planFile         = "plan.json"
	summaryFile      = "summary.json"
	analysisFile     = "analysis.json"
	versionsDir      = "versions"
)

// Options configures a Store.
type Options struct {
	// CacheTTL bounds how long living documents and session records stay
	// cached. Zero uses the default; a negative value disables the cache.
	CacheTTL time.Duration
	Logger   logging.Logger
}

// Store is a validating, append-only SessionStore.
type Store struct {
	blobs  core.ArtifactStore
	cache  *cache.Cache
	logger logging.Logger
	locks  sync.Map // session key -> *sync.Mutex
}

// Compile-time assertion.
var _ core.SessionStore = (*Store)(nil)

// New creates a Store writing through blobs.
func New(blobs core.ArtifactStore, optFns ...func(o *Options)) *Store {
	opts := Options{CacheTTL: 10 * time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Store{blobs: blobs, logger: logging.Component(opts.Logger, "session_store")}
	if opts.CacheTTL > 0 {
		s.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return s
}

// lock serializes read-modify-write sequences of one session.
func (s *Store) lock(ref core.SessionRef) func() {
	m, _ := s.locks.LoadOrStore(ref.Key(), &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type validator interface{ Validate() error }

// write validates v and hands the encoded bytes to the artifact store.
func (s *Store) write(ref core.SessionRef, name string, v any) error {
	if err := ref.Validate(); err != nil {
		return persistErr("write", ref, name, err)
	}
	if val, ok := v.(validator); ok {
		if err := val.Validate(); err != nil {
			return persistErr("validate", ref, name, err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return persistErr("encode", ref, name, err)
	}
	if err := util.ValidateJSON(data, v); err != nil {
		return persistErr("validate", ref, name, fmt.Errorf("%w: %w", core.ErrValidation, err))
	}
	if err := s.blobs.Save(ref.Key(), name, append(data, '\n')); err != nil {
		return persistErr("write", ref, name, err)
	}
	s.logger.Debug("Artifact written", "session", ref.Key(), "artifact", name, "bytes", len(data))
	return nil
}

// read decodes the named artifact into v. A missing artifact yields an error
// matching core.ErrNotFound.
func (s *Store) read(ref core.SessionRef, name string, v any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	data, err := s.blobs.Get(ref.Key(), name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%s/%s: %w", ref.Key(), name, core.ErrNotFound)
		}
		return persistErr("read", ref, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return persistErr("decode", ref, name, err)
	}
	return nil
}

func (s *Store) exists(ref core.SessionRef, name string) (bool, error) {
	_, err := s.blobs.Get(ref.Key(), name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, persistErr("read", ref, name, err)
	}
}

func persistErr(op string, ref core.SessionRef, name string, err error) error {
	return &core.PersistenceError{Op: op, Path: path.Join(ref.Key(), name), Err: err}
}

// SaveSession writes the session record.
func (s *Store) SaveSession(sess *core.Session) error {
	ref := sess.Ref()
	if err := s.write(ref, sessionFile, sess); err != nil {
		return err
	}
	s.cacheSet("session:"+ref.Key(), sess.Clone())
	return nil
}

// GetSession returns a copy of the session record.
func (s *Store) GetSession(ref core.SessionRef) (*core.Session, error) {
	if v, ok := s.cacheGet("session:" + ref.Key()); ok {
		return v.(*core.Session).Clone(), nil
	}
	var sess core.Session
	if err := s.read(ref, sessionFile, &sess); err != nil {
		return nil, err
	}
	s.cacheSet("session:"+ref.Key(), sess.Clone())
	return &sess, nil
}

// ListSessions returns every session with a session record, sorted.
func (s *Store) ListSessions() ([]core.SessionRef, error) {
	scopes, err := s.blobs.Scopes()
	if err != nil {
		return nil, &core.PersistenceError{Op: "list", Path: ".", Err: err}
	}
	refs := make([]core.SessionRef, 0, len(scopes))
	for _, scope := range scopes {
		ref, err := core.ParseSessionRef(scope)
		if err != nil {
			continue
		}
		if ok, err := s.exists(ref, sessionFile); err != nil {
			return nil, err
		} else if ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

type conversation struct {
	ProjectID string      `json:"project_id"`
	SessionID string      `json:"session_id"`
	Turns     []core.Turn `json:"turns"`
}

// AppendTurns appends conversation turns.
func (s *Store) AppendTurns(ref core.SessionRef, turns ...core.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	defer s.lock(ref)()

	conv := conversation{ProjectID: ref.ProjectID, SessionID: ref.SessionID, Turns: []core.Turn{}}
	if err := s.read(ref, conversationFile, &conv); err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	conv.Turns = append(conv.Turns, turns...)
	return s.write(ref, conversationFile, &conv)
}

// Conversation returns the ordered turns of a session.
func (s *Store) Conversation(ref core.SessionRef) ([]core.Turn, error) {
	var conv conversation
	if err := s.read(ref, conversationFile, &conv); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []core.Turn{}, nil
		}
		return nil, err
	}
	return conv.Turns, nil
}

func dropFile(dropID, name string) string { return dropID + "/" + name }

func taskFile(dropID, taskID string) string { return dropFile(dropID, taskID+"-result.json") }

func (s *Store) checkOpen(ref core.SessionRef, dropID string) error {
	done, err := s.exists(ref, dropFile(dropID, summaryFile))
	if err != nil {
		return err
	}
	if done {
		return persistErr("write", ref, dropFile(dropID, summaryFile), ErrDropComplete)
	}
	return nil
}

// SavePlan writes a drop plan. A plan may be replaced until the drop completes.
func (s *Store) SavePlan(ref core.SessionRef, plan *core.DropPlan) error {
	defer s.lock(ref)()
	if err := s.checkOpen(ref, plan.DropID); err != nil {
		return err
	}
	return s.write(ref, dropFile(plan.DropID, planFile), plan)
}

// GetPlan returns the plan of a drop.
func (s *Store) GetPlan(ref core.SessionRef, dropID string) (*core.DropPlan, error) {
	var plan core.DropPlan
	if err := s.read(ref, dropFile(dropID, planFile), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SaveTask writes a terminal task result into an open drop. A stored result
// is final: saving it again is a no-op and replacing it is an error.
func (s *Store) SaveTask(ref core.SessionRef, task *core.WorkerTask) error {
	if !task.Status.Terminal() {
		return persistErr("validate", ref, taskFile(task.DropID, task.ID),
			fmt.Errorf("%w: task %s is %s, not terminal", core.ErrValidation, task.ID, task.Status))
	}
	defer s.lock(ref)()
	if ok, err := s.exists(ref, dropFile(task.DropID, planFile)); err != nil {
		return err
	} else if !ok {
		return persistErr("write", ref, taskFile(task.DropID, task.ID), ErrNoPlan)
	}
	if err := s.checkOpen(ref, task.DropID); err != nil {
		return err
	}
	name := taskFile(task.DropID, task.ID)
	var prev core.WorkerTask
	switch err := s.read(ref, name, &prev); {
	case err == nil:
		if sameJSON(&prev, task) {
			return nil
		}
		return persistErr("write", ref, name, ErrTaskFinal)
	case !errors.Is(err, core.ErrNotFound):
		return err
	}
	return s.write(ref, name, task)
}

// GetTasks returns the task results of a drop ordered by task number.
func (s *Store) GetTasks(ref core.SessionRef, dropID string) ([]core.WorkerTask, error) {
	ids, err := s.blobs.List(ref.Key())
	if err != nil {
		return nil, persistErr("list", ref, dropID, err)
	}
	var names []string
	prefix := dropID + "/task-"
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) && strings.HasSuffix(id, "-result.json") {
			names = append(names, id)
		}
	}
	sort.Slice(names, func(i, j int) bool { return seqOf(names[i], prefix) < seqOf(names[j], prefix) })

	tasks := make([]core.WorkerTask, 0, len(names))
	for _, name := range names {
		var t core.WorkerTask
		if err := s.read(ref, name, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// SaveSummary completes a drop. It can only happen once.
func (s *Store) SaveSummary(ref core.SessionRef, summary *core.DropSummary) error {
	defer s.lock(ref)()
	if ok, err := s.exists(ref, dropFile(summary.DropID, planFile)); err != nil {
		return err
	} else if !ok {
		return persistErr("write", ref, dropFile(summary.DropID, summaryFile), ErrNoPlan)
	}
	if err := s.checkOpen(ref, summary.DropID); err != nil {
		return err
	}
	return s.write(ref, dropFile(summary.DropID, summaryFile), summary)
}

// GetSummary returns the summary of a completed drop.
func (s *Store) GetSummary(ref core.SessionRef, dropID string) (*core.DropSummary, error) {
	var summary core.DropSummary
	if err := s.read(ref, dropFile(dropID, summaryFile), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SaveAnalysis writes the critical analysis of an open drop and returns its
// artifact name. It may be replaced until the drop completes.
func (s *Store) SaveAnalysis(ref core.SessionRef, analysis *core.Analysis) (string, error) {
	defer s.lock(ref)()
	name := dropFile(analysis.DropID, analysisFile)
	if ok, err := s.exists(ref, dropFile(analysis.DropID, planFile)); err != nil {
		return "", err
	} else if !ok {
		return "", persistErr("write", ref, name, ErrNoPlan)
	}
	if err := s.checkOpen(ref, analysis.DropID); err != nil {
		return "", err
	}
	if err := s.write(ref, name, analysis); err != nil {
		return "", err
	}
	return name, nil
}

// GetAnalysis returns the critical analysis of a drop.
func (s *Store) GetAnalysis(ref core.SessionRef, dropID string) (*core.Analysis, error) {
	var a core.Analysis
	if err := s.read(ref, dropFile(dropID, analysisFile), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListDrops returns the ids of every planned drop in sequence order.
func (s *Store) ListDrops(ref core.SessionRef) ([]string, error) {
	ids, err := s.blobs.List(ref.Key())
	if err != nil {
		return nil, persistErr("list", ref, ".", err)
	}
	var drops []string
	for _, id := range ids {
		dir, file := path.Split(id)
		if file == planFile && strings.HasPrefix(dir, "drop-") && strings.Count(dir, "/") == 1 {
			drops = append(drops, strings.TrimSuffix(dir, "/"))
		}
	}
	sort.Slice(drops, func(i, j int) bool { return seqOf(drops[i], "drop-") < seqOf(drops[j], "drop-") })
	return drops, nil
}

// seqOf extracts the number following prefix in name.
func seqOf(name, prefix string) int {
	rest := strings.TrimPrefix(name, prefix)
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		rest = rest[:end]
	}
	n, _ := strconv.Atoi(rest)
	return n
}

func versionFile(v int) string {
	return fmt.Sprintf("%s/living-document-v%d.json", versionsDir, v)
}

// SaveDocument appends a new living document version. The version must be
// greater than the stored one and the document must retain every stored
// claim. Saving an identical document again is a no-op.
func (s *Store) SaveDocument(ref core.SessionRef, doc *core.LivingDocument) error {
	defer s.lock(ref)()

	prev, err := s.loadDocument(ref)
	if err != nil {
		return err
	}
	if doc.Version <= prev.Version {
		if doc.Version == prev.Version && sameJSON(prev, doc) {
			return nil
		}
		return persistErr("write", ref, documentFile,
			fmt.Errorf("%w: have v%d, got v%d", ErrStaleVersion, prev.Version, doc.Version))
	}
	if err := doc.Retains(prev); err != nil {
		return persistErr("validate", ref, documentFile, err)
	}

	s.cacheDelete("doc:" + ref.Key())
	if err := s.write(ref, versionFile(doc.Version), doc); err != nil {
		return err
	}
	if err := s.write(ref, documentFile, doc); err != nil {
		return err
	}
	s.cacheSet("doc:"+ref.Key(), doc.Clone())
	return nil
}

func sameJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// GetLivingDocument returns the current living document, or an empty version
// 0 document for a session that has not been synthesized yet.
func (s *Store) GetLivingDocument(ref core.SessionRef) (*core.LivingDocument, error) {
	doc, err := s.loadDocument(ref)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *Store) loadDocument(ref core.SessionRef) (*core.LivingDocument, error) {
	if v, ok := s.cacheGet("doc:" + ref.Key()); ok {
		return v.(*core.LivingDocument), nil
	}
	doc := core.NewLivingDocument(ref.ProjectID, ref.SessionID)
	if err := s.read(ref, documentFile, doc); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewLivingDocument(ref.ProjectID, ref.SessionID), nil
		}
		return nil, err
	}
	s.cacheSet("doc:"+ref.Key(), doc.Clone())
	return doc, nil
}

// GetDocumentVersion returns a historical living document version.
func (s *Store) GetDocumentVersion(ref core.SessionRef, version int) (*core.LivingDocument, error) {
	var doc core.LivingDocument
	if err := s.read(ref, versionFile(version), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type metadataIndex struct {
	ProjectID string                `json:"project_id"`
	SessionID string                `json:"session_id"`
	Records   []core.MetadataRecord `json:"records"`
}

// Validate checks every record.
func (m *metadataIndex) Validate() error {
	for _, r := range m.Records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AppendMetadata appends records to the session's metadata index.
// Regenerated records are appended too; readers see the latest per id.
func (s *Store) AppendMetadata(ref core.SessionRef, recs ...core.MetadataRecord) error {
	if len(recs) == 0 {
		return nil
	}
	defer s.lock(ref)()

	idx := metadataIndex{ProjectID: ref.ProjectID, SessionID: ref.SessionID, Records: []core.MetadataRecord{}}
	if err := s.read(ref, metadataFile, &idx); err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	idx.Records = append(idx.Records, recs...)
	return s.write(ref, metadataFile, &idx)
}

// Metadata returns the latest record per id in order of first appearance.
func (s *Store) Metadata(ref core.SessionRef) ([]core.MetadataRecord, error) {
	var idx metadataIndex
	if err := s.read(ref, metadataFile, &idx); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []core.MetadataRecord{}, nil
		}
		return nil, err
	}
	pos := make(map[string]int, len(idx.Records))
	out := make([]core.MetadataRecord, 0, len(idx.Records))
	for _, r := range idx.Records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) cacheGet(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Store) cacheSet(key string, v any) {
	if s.cache != nil {
		s.cache.Set(key, v, cache.DefaultExpiration)
	}
}

func (s *Store) cacheDelete(key string) {
	if s.cache != nil {
		s.cache.Delete(key)
	}
}
