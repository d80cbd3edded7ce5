package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/database/library"
	"github.com/mrlokans/listenwise/internal/entities"
)

// OwnerStatusReader is the read-only part of the connector used here.
type OwnerStatusReader interface {
	CredentialStatus(ownerID uint) (*entities.StoredCredential, error)
	RunStatus(ownerID uint, kind entities.RunKind) (*entities.RunClaim, error)
	RunActive(ownerID uint, kind entities.RunKind) (bool, error)
	LibrarySummary(ownerID uint) (*connector.LibrarySummary, error)
}

// LibraryReader serves an owner's synced library.
type LibraryReader interface {
	Library(ownerID uint, q library.EntryQuery) (*connector.LibraryPage, error)
	Book(ownerID uint, asin string) (*connector.BookDetail, error)
}

// OwnerStatusResponse never includes session material. A run whose claim is
// still running but no longer heartbeating reports active false.
type OwnerStatusResponse struct {
	OwnerID         uint                       `json:"owner_id"`
	Credential      *entities.StoredCredential `json:"credential,omitempty"`
	Library         *connector.LibrarySummary  `json:"library"`
	Sync            *entities.RunClaim         `json:"sync,omitempty"`
	SyncActive      bool                       `json:"sync_active"`
	Recommend       *entities.RunClaim         `json:"recommend,omitempty"`
	RecommendActive bool                       `json:"recommend_active"`
}

// OwnersController reports per-owner connection, run and library status.
type OwnersController struct {
	status  OwnerStatusReader
	library LibraryReader
}

// NewOwnersController creates a new OwnersController. lib may be nil when
// only the status route is mounted.
func NewOwnersController(status OwnerStatusReader, lib LibraryReader) *OwnersController {
	return &OwnersController{status: status, library: lib}
}

// GetStatus handles GET /api/owners/:id/status
func (oc *OwnersController) GetStatus(c *gin.Context) {
	ownerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	resp := OwnerStatusResponse{OwnerID: ownerID}

	cred, err := oc.status.CredentialStatus(ownerID)
	switch {
	case errors.Is(err, connector.ErrNotConnected):
	case err != nil:
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	default:
		resp.Credential = cred
	}

	if resp.Library, err = oc.status.LibrarySummary(ownerID); err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}

	runs := []struct {
		kind   entities.RunKind
		claim  **entities.RunClaim
		active *bool
	}{
		{entities.RunKindSync, &resp.Sync, &resp.SyncActive},
		{entities.RunKindRecommend, &resp.Recommend, &resp.RecommendActive},
	}
	for _, r := range runs {
		if *r.claim, err = oc.status.RunStatus(ownerID, r.kind); err != nil {
			jsonError(c, http.StatusInternalServerError, err.Error())
			return
		}
		if *r.active, err = oc.status.RunActive(ownerID, r.kind); err != nil {
			jsonError(c, http.StatusInternalServerError, err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

type libraryParams struct {
	Search   string `form:"search"`
	Author   string `form:"author"`
	Narrator string `form:"narrator"`
	Series   string `form:"series"`
	All      bool   `form:"all"`
	Sort     string `form:"sort" binding:"omitempty,oneof=title release_date runtime acquired"`
	Desc     bool   `form:"desc"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

// ListLibrary handles GET /api/owners/:id/library
func (oc *OwnersController) ListLibrary(c *gin.Context) {
	ownerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var params libraryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		jsonError(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := oc.library.Library(ownerID, library.EntryQuery{
		Search:        params.Search,
		Author:        params.Author,
		Narrator:      params.Narrator,
		Series:        params.Series,
		IncludeHidden: params.All,
		Sort:          library.EntrySort(params.Sort),
		Desc:          params.Desc,
		Limit:         params.Limit,
		Offset:        params.Offset,
	})
	if err != nil {
		jsonError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetBook handles GET /api/owners/:id/books/:asin
func (oc *OwnersController) GetBook(c *gin.Context) {
	ownerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := oc.library.Book(ownerID, c.Param("asin"))
	switch {
	case errors.Is(err, connector.ErrBookNotFound):
		jsonError(c, http.StatusNotFound, err.Error())
	case err != nil:
		jsonError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusOK, detail)
	}
}
