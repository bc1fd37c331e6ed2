package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/user"
)

type caseApi struct {
	svc      cases.Service
	usrSvc   user.Service
	attSvc   attachment.Service
	validate *validator.Validate
}

func registerCaseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc cases.Service,
	usrSvc user.Service,
	attSvc attachment.Service,
	validate *validator.Validate,
) {
	api := caseApi{
		svc:      svc,
		usrSvc:   usrSvc,
		attSvc:   attSvc,
		validate: validate,
	}

	cg := g.Group("/cases", jwt)
	cg.POST("", api.create)
	cg.GET("", api.query)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/assign", api.assign)
	dg.POST("/transition", api.transition)
	dg.GET("/logs", api.queryLogs)
	dg.POST("/logs", api.addComment)
	dg.GET("/attachments", api.queryAttachments)
	dg.POST("/attachments", api.upload)
	dg.GET("/attachments/:attID/download", api.download)
	dg.DELETE("/attachments/:attID", api.destroyAttachment)
}

// Handlers

func (api *caseApi) create(ctx echo.Context) error {
	var data cases.NewCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCase")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	c, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating case")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *caseApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(cases.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		filter = new(cases.QueryFilter)
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	page := bindPagination(ctx)

	result, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying cases")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *caseApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	c, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	orig, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data cases.UpdateCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCase")
	}
	if err := data.Validate(orig, api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), actor, orig.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *caseApi) assign(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data cases.AssignCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignCase")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Assign(ctx.Request().Context(), actor, ctx.Param("id"), data.AssigneeID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) transition(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data cases.TransitionCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionCase")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Transition(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) queryLogs(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	logs, err := api.svc.QueryLogs(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *caseApi) addComment(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data cases.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	log, err := api.svc.AddComment(ctx.Request().Context(), actor, ctx.Param("id"), data.Message)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, log)
}

// Attachments

func (api *caseApi) queryAttachments(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// visibility check
	c, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}

	ats, err := api.attSvc.QueryByCase(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying attachments")
	}
	return ctx.JSON(http.StatusOK, ats)
}

func (api *caseApi) upload(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	c, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return err
	}
	if c.IsTerminal() {
		return core.NewValidationError(errors.New("case is in a terminal status"))
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	if fh.Size > core.Conf.Uploads.MaxSize {
		return errFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	at, err := api.attSvc.Attach(ctx.Request().Context(), c.ID, actor.ID, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return errors.Wrap(err, "attaching file")
	}
	return ctx.JSON(http.StatusCreated, at)
}

// getCaseAttachment resolves an attachment after the case visibility check and
// guards against cross-case attachment IDs.
func (api *caseApi) getCaseAttachment(ctx echo.Context, actor user.User) (attachment.Attachment, error) {
	c, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return attachment.Attachment{}, err
	}
	at, err := api.attSvc.Get(ctx.Request().Context(), ctx.Param("attID"))
	if err != nil {
		return attachment.Attachment{}, err
	}
	if at.CaseID != c.ID {
		return attachment.Attachment{}, attachment.ErrNotFound
	}
	return at, nil
}

func (api *caseApi) download(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	at, err := api.getCaseAttachment(ctx, actor)
	if err != nil {
		return err
	}

	rc, err := api.attSvc.Open(ctx.Request().Context(), at)
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", at.Filename))
	return ctx.Stream(http.StatusOK, at.ContentType, rc)
}

func (api *caseApi) destroyAttachment(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	at, err := api.getCaseAttachment(ctx, actor)
	if err != nil {
		return err
	}

	// only the uploader, managers and admins may remove attachments
	if !(at.UploadedBy == actor.ID || actor.IsAdmin() || actor.IsManager()) {
		return errHttpForbidden
	}

	if err := api.attSvc.Delete(ctx.Request().Context(), at); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
