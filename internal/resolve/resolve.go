// Package resolve narrows the roster down to a recipient selection and
// expands that selection into seeded draft entries.
package resolve

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"RosterMail/internal/models"
	"RosterMail/internal/render"
)

// NoManagerLabel groups recipients with no declared manager.
const NoManagerLabel = "(Sin jefatura asignada)"

// AllDepartments disables the department filter.
const AllDepartments = "Todos"

// Normalize lowercases and strips diacritics so "Pérez" matches "perez".
func Normalize(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func matchesSearch(r models.Recipient, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(Normalize(r.Name), term) ||
		strings.Contains(Normalize(r.Email), term) ||
		strings.Contains(Normalize(r.Department), term)
}

func matchesDept(r models.Recipient, dept string) bool {
	return dept == "" || dept == AllDepartments || r.Department == dept
}

// Filter applies the free-text and department predicates conjunctively.
func Filter(recipients []models.Recipient, search, dept string) []models.Recipient {
	term := Normalize(search)
	var out []models.Recipient
	for _, r := range recipients {
		if matchesSearch(r, term) && matchesDept(r, dept) {
			out = append(out, r)
		}
	}
	return out
}

// Departments lists the distinct non-empty departments, sorted, with the
// catch-all entry first.
func Departments(recipients []models.Recipient) []string {
	seen := make(map[string]struct{})
	var depts []string
	for _, r := range recipients {
		if r.Department == "" {
			continue
		}
		if _, ok := seen[r.Department]; ok {
			continue
		}
		seen[r.Department] = struct{}{}
		depts = append(depts, r.Department)
	}
	sort.Strings(depts)
	return append([]string{AllDepartments}, depts...)
}

// Group is one reporting-line bucket.
type Group struct {
	Label   string
	Members []models.Recipient
}

// GroupByManager buckets the filtered recipients by declared manager name,
// preserving first-seen group order. Recipients without a manager land under
// NoManagerLabel.
func GroupByManager(recipients []models.Recipient, search, dept string) []Group {
	term := Normalize(search)
	index := make(map[string]int)
	var groups []Group
	for _, r := range recipients {
		if !matchesSearch(r, term) || !matchesDept(r, dept) {
			continue
		}
		label := strings.TrimSpace(r.BossName)
		if label == "" {
			label = NoManagerLabel
		}
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, Group{Label: label})
		}
		groups[i].Members = append(groups[i].Members, r)
	}
	return groups
}

// Selection is a set of selected recipient ids.
type Selection map[string]struct{}

func (s Selection) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Selection) Toggle(id string) {
	if s.Has(id) {
		delete(s, id)
		return
	}
	s[id] = struct{}{}
}

// ToggleGroup flips a whole reporting-line group atomically: when every
// member is selected the group is cleared, otherwise every member is added.
func (s Selection) ToggleGroup(members []models.Recipient) {
	allSelected := len(members) > 0
	for _, m := range members {
		if !s.Has(m.ID) {
			allSelected = false
			break
		}
	}
	for _, m := range members {
		if allSelected {
			delete(s, m.ID)
		} else {
			s[m.ID] = struct{}{}
		}
	}
}

// ComputeSentSet extracts the recipient ids that already got a logged send.
// Recomputed once per batch construction, never trusted from a snapshot.
func ComputeSentSet(logs []models.EmailLog) map[string]struct{} {
	sent := make(map[string]struct{}, len(logs))
	for _, l := range logs {
		sent[l.RecipientID] = struct{}{}
	}
	return sent
}

// SeedDraftEntries expands the selected recipients into draft entries.
// Snapshot edits win over the freshly rendered template; a recipient already
// present in the campaign's logs comes back sent, no matter what any
// snapshot says.
func SeedDraftEntries(selected []models.Recipient, tpl models.EmailTemplate, campaign *models.Campaign, snap *models.DraftSnapshot) *models.EntryList {
	var sentSet map[string]struct{}
	if campaign != nil {
		sentSet = ComputeSentSet(campaign.Logs)
	}

	list := models.NewEntryList()
	for _, r := range selected {
		rendered := render.Render(tpl, r)
		entry := &models.DraftEntry{
			RecipientID: r.ID,
			Recipient:   r,
			Mode:        models.ModePrimary,
			Subject:     rendered.Subject,
			Body:        rendered.Body,
			State:       models.StatePending,
		}
		if snap != nil {
			if edits, ok := snap.Edits[r.ID]; ok {
				entry.Subject = edits.Subject
				entry.Body = edits.Body
				entry.CcBoss = edits.CcBoss
				entry.CcFixed = edits.CcFixed
				entry.AdditionalCc = edits.AdditionalCc
			}
		}
		if _, ok := sentSet[r.ID]; ok {
			entry.Sent = true
			entry.State = models.StateSent
		}
		list.Add(entry)
	}
	return list
}
