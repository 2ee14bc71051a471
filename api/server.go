package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"package-registry/auth"
	"package-registry/config"
	"package-registry/index"
	"package-registry/orm"
	"package-registry/proxy"
)

// Directory is the account/grant storage surface the API depends on.
// *orm.DB satisfies it; tests substitute an in-memory fake.
type Directory interface {
	auth.CredentialSource
	auth.GrantSource

	CreateUser(ctx context.Context, user *orm.User) error
	UserByID(ctx context.Context, id string) (*orm.User, error)
	ListUsers(ctx context.Context) ([]orm.User, error)
	SaveUser(ctx context.Context, user *orm.User) error
	DeleteUser(ctx context.Context, id string) error

	CreateToken(ctx context.Context, token *orm.Token) error
	TokenByID(ctx context.Context, id string) (*orm.Token, error)
	TokensForUser(ctx context.Context, userID string) ([]orm.Token, error)
	SaveToken(ctx context.Context, token *orm.Token) error

	CreateGroup(ctx context.Context, group *orm.Group) error
	GroupByID(ctx context.Context, id string) (*orm.Group, error)
	GroupByName(ctx context.Context, name string) (*orm.Group, error)
	ListGroups(ctx context.Context) ([]orm.Group, error)
	GroupsByIDs(ctx context.Context, ids []string) ([]orm.Group, error)
	MembersOf(ctx context.Context, groupID string) ([]orm.User, []orm.Token, error)
	DeleteGroup(ctx context.Context, id string) error

	CreateGrant(ctx context.Context, grant *orm.PermissionGrant) error
	GrantsForTarget(
		ctx context.Context,
		targetType, targetID string,
		project *string,
	) ([]orm.PermissionGrant, error)
	DeleteGrant(
		ctx context.Context,
		targetType, targetID, permission string,
		project *string,
	) error
}

// Server holds the wired components behind the HTTP surface.
type Server struct {
	cfg      *config.AppConfig
	dir      Directory
	idx      *index.Index
	fed      *proxy.Federator
	resolver *auth.Resolver
	authn    *auth.Authenticator
}

func NewServer(cfg *config.AppConfig, dir Directory, idx *index.Index, fed *proxy.Federator) *Server {
	creds := auth.NewCredentialStore(dir, cfg.Auth.Admin)

	return &Server{
		cfg:      cfg,
		dir:      dir,
		idx:      idx,
		fed:      fed,
		resolver: auth.NewResolver(dir),
		authn:    auth.NewAuthenticator(creds, cfg.Auth.AllowAnonymous),
	}
}

// Router builds the gin engine with every route mounted under the
// configured path base.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	base := strings.TrimSuffix(s.cfg.API.PathBase, "/")
	root := engine.Group(base)
	root.Use(s.authenticate())

	root.GET("/packages", s.listPackages)
	root.POST("/packages/upload", s.uploadPackage)
	root.GET("/packages/detail/:name", s.packageDetail)
	root.GET("/packages/detail/:name/:version", s.packageDetail)
	root.GET("/packages/:name", s.simpleDetail)

	root.GET("/files/:name/:version/:filename", s.downloadFile)

	users := root.Group("/users", s.guardAuthEnabled())
	users.GET("", s.listUsers)
	users.POST("/create", s.createUser)
	users.GET("/self", s.currentUser)
	users.DELETE("/self", s.deleteCurrentUser)
	users.POST("/self/password", s.changePassword)
	users.GET("/self/tokens", s.listTokens)
	users.POST("/self/tokens", s.createToken)
	users.GET("/:method/:value", s.getUser)
	users.DELETE("/:method/:value", s.deleteUser)
	users.GET("/:method/:value/permissions", s.userPermissions)
	users.GET("/:method/:value/permissions/:project", s.userPermissions)
	users.POST("/:method/:value/permissions", s.addUserPermission)
	users.POST("/:method/:value/permissions/delete", s.deleteUserPermission)

	groups := root.Group("/groups", s.guardAuthEnabled())
	groups.GET("", s.listGroups)
	groups.POST("/create", s.createGroup)
	groups.GET("/:method/:value", s.getGroup)
	groups.DELETE("/:method/:value", s.deleteGroup)
	groups.GET("/:method/:value/members", s.groupMembers)
	groups.POST("/:method/:value/members", s.addGroupMember)
	groups.POST("/:method/:value/members/delete", s.removeGroupMember)
	groups.GET("/:method/:value/permissions", s.groupPermissions)
	groups.GET("/:method/:value/permissions/:project", s.groupPermissions)
	groups.POST("/:method/:value/permissions", s.addGroupPermission)
	groups.POST("/:method/:value/permissions/delete", s.deleteGroupPermission)

	return engine
}
