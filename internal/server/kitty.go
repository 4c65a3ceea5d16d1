package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

type createKittyRequest struct {
	Dna   []byte `json:"dna"`
	Price int64  `json:"price"`
}

type transferKittyRequest struct {
	NewOwner string `json:"new_owner"`
}

type transferKittyResponse struct {
	KittyID domain.KittyID     `json:"kitty_id"`
	From    domain.PrincipalID `json:"from"`
	To      domain.PrincipalID `json:"to"`
}

func (s *Server) CreateKitty(c *gin.Context) {
	var req createKittyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kitty, err := s.kittySvc.Create(c.Request.Context(), domain.CreateRequest{
		Caller: callerFrom(c),
		Dna:    req.Dna,
		Price:  req.Price,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": kitty})
}

func (s *Server) TransferKitty(c *gin.Context) {
	id, err := domain.ParseKittyID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transferKittyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	newOwner, err := domain.ParsePrincipal(req.NewOwner)
	if err != nil {
		AbortWithError(c, newValidationError("new_owner", "invalid_new_owner", "invalid new_owner"))
		return
	}

	caller := callerFrom(c)
	if err := s.kittySvc.Transfer(c.Request.Context(), domain.TransferRequest{
		Caller:   caller,
		KittyID:  id,
		NewOwner: newOwner,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transferKittyResponse{
		KittyID: id,
		From:    caller,
		To:      newOwner,
	}})
}

func (s *Server) GetKitty(c *gin.Context) {
	id, err := domain.ParseKittyID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	kitty, err := s.kittySvc.GetRecord(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if kitty == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": kitty})
}

func (s *Server) ListOwnedKitties(c *gin.Context) {
	principal, err := domain.ParsePrincipal(c.Param("principal"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	kitties, err := s.kittySvc.ListOwned(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": kitties})
}
