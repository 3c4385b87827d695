package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

type userRepository struct {
	db *userTable
	// enrollments, guardian links and attempts of deleted users go with them
	academic   *academicTables
	assessment *attemptTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user, academic: db.academic, assessment: db.assessment}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, copyUser(*u))
	}
	return users
}

func copyUser(usr user.User) user.User {
	usr.Roles = append([]string(nil), usr.Roles...)
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.db.table {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if err := repo.conflict(usr); err != nil {
		return user.User{}, err
	}
	usr.ID = uuid.New().String()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	stored := copyUser(usr)
	repo.db.table[usr.ID] = &stored
	return copyUser(usr), nil
}

// conflict mirrors the partial unique indexes of the users table: empty values never collide.
// The caller holds the lock.
func (repo *userRepository) conflict(usr user.User) error {
	for _, other := range repo.db.table {
		if other.ID == usr.ID {
			continue
		}
		if usr.Username != "" && other.Username == usr.Username {
			return user.ErrUsernameExists
		}
		if usr.Email != "" && other.Email == usr.Email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.table))
	for _, usr := range repo.query() {
		if filter != nil && !matches(usr, filter) {
			continue
		}
		users = append(users, usr)
	}
	sortUsers(users, ordering)
	return users, nil
}

func matches(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s)) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// sortUsers orders by the given columns, then by creation date.
func sortUsers(users []user.User, ordering []core.DBOrdering) {
	less := func(a, b user.User, field string) int {
		var x, y string
		switch field {
		case "name":
			x, y = a.Name, b.Name
		case "username":
			x, y = a.Username, b.Username
		case "email":
			x, y = a.Email, b.Email
		case "is_active":
			switch {
			case a.IsActive == b.IsActive:
				return 0
			case b.IsActive:
				return -1
			}
			return 1
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "last_login":
			return compareTimes(a.LastLogin, b.LastLogin)
		}
		return strings.Compare(x, y)
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := less(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.table {
		var ok bool
		switch {
		case filter.Username != "":
			ok = usr.Username == filter.Username
		case filter.Email != "":
			ok = usr.Email == filter.Email
		case filter.UsernameOrEmail != "":
			ok = usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail
		}
		if ok {
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(_ context.Context, ids ...string) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(ids))
	for _, id := range ids {
		if usr, ok := repo.db.table[id]; ok {
			users = append(users, copyUser(*usr))
		}
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.conflict(usr); err != nil {
		return user.User{}, err
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	stored := copyUser(usr)
	repo.db.table[usr.ID] = &stored
	return copyUser(usr), nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	repo.cascade(ids)
	return nil
}

func (repo *userRepository) cascade(ids []string) {
	repo.academic.Lock()
	enrollments := repo.academic.enrollments[:0]
	for _, e := range repo.academic.enrollments {
		if !contains(ids, e.StudentID) {
			enrollments = append(enrollments, e)
		}
	}
	repo.academic.enrollments = enrollments
	links := repo.academic.guardianLinks[:0]
	for _, l := range repo.academic.guardianLinks {
		if !contains(ids, l.GuardianID) && !contains(ids, l.StudentID) {
			links = append(links, l)
		}
	}
	repo.academic.guardianLinks = links
	for id, s := range repo.academic.subjects {
		if s.TeacherID.Valid && contains(ids, s.TeacherID.String) {
			s.TeacherID.Valid = false
			s.TeacherID.String = ""
			repo.academic.subjects[id] = s
		}
	}
	repo.academic.Unlock()

	repo.assessment.Lock()
	for id, a := range repo.assessment.table {
		if contains(ids, a.StudentID) {
			delete(repo.assessment.table, id)
		}
	}
	repo.assessment.Unlock()
}
