package httpserver

import (
	"github.com/labstack/echo/v4"

	"app/internal/handlers"
	authmw "app/internal/middleware/auth"
	"app/internal/models"
)

type Deps struct {
	AuthHandler     *handlers.AuthHandler
	EmployeeHandler *handlers.EmployeeHandler
	UserHandler     *handlers.UserHandler
	SearchHandler   *handlers.SearchHandler
	Gate            *authmw.Gate
}

// Register wires every route. Role checks are composed here, at
// registration time, so the capability of each endpoint is readable in one
// place.
func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	e.POST("/register", d.AuthHandler.Register)
	e.POST("/auth", d.AuthHandler.Login)
	e.POST("/refresh", d.AuthHandler.Refresh)
	e.POST("/logout", d.AuthHandler.Logout)

	employees := e.Group("/employees", d.Gate.VerifyJWT)
	employees.GET("", d.EmployeeHandler.GetEmployees)
	employees.GET("/search", d.SearchHandler.Search)
	employees.GET("/:id", d.EmployeeHandler.GetEmployee)
	employees.POST("", d.EmployeeHandler.CreateEmployee,
		authmw.RequireRoles(models.RoleAdmin, models.RoleEditor))
	employees.PUT("", d.EmployeeHandler.UpdateEmployee,
		authmw.RequireRoles(models.RoleAdmin, models.RoleEditor))
	employees.DELETE("", d.EmployeeHandler.DeleteEmployee,
		authmw.RequireRoles(models.RoleAdmin))

	users := e.Group("/users", d.Gate.VerifyJWT, authmw.RequireRoles(models.RoleAdmin))
	users.GET("", d.UserHandler.GetUsers)
	users.GET("/:id", d.UserHandler.GetUser)
	users.DELETE("", d.UserHandler.DeleteUser)
}
