package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
)

const jwtContextKey = "userToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	UserID       int       `json:"uid,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	TeacherID    null.Int  `json:"teacher_id,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

// GetUserClaims builds the token claims for a user. teacherID carries the
// teacher record backing a TEACHER account; null for front-office staff.
func GetUserClaims(conf *core.Config, usr user.User, teacherID null.Int, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Audience:  "TheHouse",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		UserID:       usr.ID,
		Email:        usr.Email,
		Role:         usr.Role,
		TeacherID:    teacherID,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(conf.SecretKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func authenticate(ctx context.Context, email, pwd string, deps ServerDeps) (*Claims, error) {
	usr, err := deps.UserSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	teacherID, err := resolveTeacherID(ctx, usr, deps.SchoolSvc)
	if err != nil {
		return nil, err
	}
	if usr, err = deps.UserSvc.SetLastLogin(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetUserClaims(deps.Conf, usr, teacherID), nil
}

// resolveTeacherID finds the teacher record backing a TEACHER account. An
// account with the TEACHER role but no teacher row cannot be scoped and is
// rejected outright.
func resolveTeacherID(ctx context.Context, usr user.User, svc school.ServiceInterface) (null.Int, error) {
	if usr.Role != user.RoleTeacher {
		return null.Int{}, nil
	}
	t, err := svc.GetTeacherByUser(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == school.ErrTeacherNotFound {
			return null.Int{}, errAccountUnprovisioned
		}
		return null.Int{}, errors.Wrap(err, "finding teacher by user")
	}
	return null.IntFrom(t.ID), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getPrincipal turns the request's claims into the actor the domain services
// authorize against.
func getPrincipal(ctx echo.Context) (auth.Principal, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{
		UserID:    claims.UserID,
		Role:      claims.Role,
		TeacherID: claims.TeacherID,
	}, nil
}

func refreshToken(ctx echo.Context, deps ServerDeps) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := deps.UserSvc.GetByID(ctx.Request().Context(), claims.UserID)
	if err != nil {
		return "", errors.Wrap(err, "finding user by ID")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(deps.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	teacherID, err := resolveTeacherID(ctx.Request().Context(), usr, deps.SchoolSvc)
	if err != nil {
		return "", err
	}

	newClaims := GetUserClaims(deps.Conf, usr, teacherID, claims.OrigIssuedAt)
	token, err := GenerateToken(deps.Conf, newClaims)
	return token, errors.Wrap(err, "generating token")
}
