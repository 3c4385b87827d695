package user

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
)

// minIDFragmentLen is the minimum number of trailing national ID characters a guardian must supply.
const minIDFragmentLen = 4

// orderingColumns are the User fields Query can order by.
var orderingColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

var (
	// errors
	ErrNotFound                 = core.NewNotFoundError("user")
	ErrEmailExists              = errors.New("a user with this email already exists")
	ErrUsernameExists           = errors.New("a user with this username already exists")
	ErrUserExists               = errors.New("a user with this username or email already exists")
	ErrGuardianAuthFailed       = errors.New("guardian authentication failed")
	errInvalidValue             = "invalid value"
	errPasswordResetMailSubject = "Password Reset"
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user,
		// except excludedUsers, already uses username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		GetUsersByID(ctx context.Context, ids ...string) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsers(ctx context.Context, ids ...string) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		AuthenticateGuardian(ctx context.Context, email, idFragment string) (User, error)
	}

	service struct {
		repo      Repository
		mailSvc   core.EmailService
		publisher events.Publisher
		tokens    tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, publisher events.Publisher, conf *core.Config) Service {
	return &service{
		repo:      repo,
		mailSvc:   mailSvc,
		publisher: publisher,
		tokens:    newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// publishStudentChanged tells grade views that the account of a student changed.
func (svc *service) publishStudentChanged(studentID string) {
	svc.publisher.Publish(events.Event{
		Kind:       events.UserChanged,
		StudentID:  studentID,
		OccurredAt: time.Now().UTC(),
	})
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:       nu.Name,
		Username:   nu.Username,
		Email:      nu.Email,
		NationalID: nu.NationalID,
		IsActive:   true,
		Roles:      nu.Roles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.CleanOrdering(ordering, orderingColumns))
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	wasStudent := usr.IsStudent()
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.NationalID = uu.NationalID
	usr.UpdatedAt = time.Now().UTC()
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, err
	}
	if wasStudent || usr.IsStudent() {
		svc.publishStudentChanged(usr.ID)
	}
	return usr, nil
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	users, err := svc.repo.GetUsersByID(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "getting users")
	}
	if err = svc.repo.DeleteUsers(ctx, ids...); err != nil {
		return err
	}
	for i := range users {
		if users[i].IsStudent() {
			svc.publishStudentChanged(users[i].ID)
		}
	}
	return nil
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return nil
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	name := usr.Name
	if name == "" {
		name = usr.Username
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: usr.Email}},
		Subject:      errPasswordResetMailSubject,
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  name,
			"Path":  fmt.Sprintf("/password-reset/%s/%s", EncodeUID(usr), svc.tokens.make(usr)),
			"Hours": int(svc.tokens.timeout / time.Hour),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uid, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidValue})
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidValue})
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verify(usr, data.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidValue})
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// AuthenticateGuardian identifies a guardian by email and the trailing characters of their
// national ID. Every failure is reported as ErrGuardianAuthFailed.
func (svc *service) AuthenticateGuardian(ctx context.Context, email, idFragment string) (User, error) {
	idFragment = strings.ToUpper(core.CleanString(idFragment))
	if len(idFragment) < minIDFragmentLen {
		return User{}, ErrGuardianAuthFailed
	}

	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrGuardianAuthFailed
		}
		return User{}, errors.Wrap(err, "finding guardian by email")
	}
	if !usr.IsGuardian() || !usr.IsActive || len(usr.NationalID) < len(idFragment) {
		return User{}, ErrGuardianAuthFailed
	}

	suffix := strings.ToUpper(usr.NationalID[len(usr.NationalID)-len(idFragment):])
	if subtle.ConstantTimeCompare([]byte(suffix), []byte(idFragment)) == 0 {
		return User{}, ErrGuardianAuthFailed
	}
	return usr, nil
}
