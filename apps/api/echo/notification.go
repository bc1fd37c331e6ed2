package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
)

type notificationApi struct {
	svc    notification.Service
	usrSvc user.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc notification.Service, usrSvc user.Service) {
	api := notificationApi{
		svc:    svc,
		usrSvc: usrSvc,
	}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read-all", api.markAllRead)
	ng.POST("/:id/read", api.markRead)
	ng.DELETE("/:id", api.destroy)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(notification.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		filter = new(notification.QueryFilter)
	}
	page := bindPagination(ctx)

	result, err := api.svc.QueryForUser(ctx.Request().Context(), actor.ID, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	count, err := api.svc.UnreadCount(ctx.Request().Context(), actor.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"unread_count": count})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.MarkAllRead(ctx.Request().Context(), actor.ID); err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.MarkRead(ctx.Request().Context(), actor.ID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Delete(ctx.Request().Context(), actor.ID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
