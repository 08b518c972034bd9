package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"app/internal/es"
	"app/internal/logging"
	"app/internal/models"
	"app/internal/mykafka"
)

type EmployeeHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	Index    string
}

func (h *EmployeeHandler) publish(c echo.Context, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "employee_events", fmt.Sprint(event["employeeID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka_publish_error", "error", err)
	}
}

func (h *EmployeeHandler) indexDoc(c echo.Context, emp models.Employee) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.IndexEmployee(ctx, h.ES, h.Index, emp); err != nil {
		logging.FromContext(c.Request().Context()).Error("es_index_error", "error", err)
	}
}

func (h *EmployeeHandler) GetEmployees(c echo.Context) error {
	var employees []models.Employee
	if err := h.DB.Order("id ASC").Find(&employees).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if len(employees) == 0 {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, employees)
}

func (h *EmployeeHandler) GetEmployee(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Employee ID required")
	}

	var employee models.Employee
	if err := h.DB.First(&employee, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, employee)
}

func (h *EmployeeHandler) CreateEmployee(c echo.Context) error {
	var req struct {
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Firstname == "" || req.Lastname == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "First and last names are required")
	}

	employee := models.Employee{Firstname: req.Firstname, Lastname: req.Lastname}
	if err := h.DB.Create(&employee).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create employee")
	}

	h.indexDoc(c, employee)
	h.publish(c, map[string]interface{}{
		"type":       "employee_created",
		"employeeID": employee.ID,
	})

	return c.JSON(http.StatusCreated, employee)
}

func (h *EmployeeHandler) UpdateEmployee(c echo.Context) error {
	var req struct {
		ID        uint    `json:"id"`
		Firstname *string `json:"firstname"`
		Lastname  *string `json:"lastname"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var employee models.Employee
	if err := h.DB.First(&employee, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if req.Firstname != nil {
		employee.Firstname = *req.Firstname
	}
	if req.Lastname != nil {
		employee.Lastname = *req.Lastname
	}
	if err := h.DB.Save(&employee).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update employee")
	}

	h.indexDoc(c, employee)
	h.publish(c, map[string]interface{}{
		"type":       "employee_updated",
		"employeeID": employee.ID,
	})

	return c.JSON(http.StatusOK, employee)
}

func (h *EmployeeHandler) DeleteEmployee(c echo.Context) error {
	var req struct {
		ID uint `json:"id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var employee models.Employee
	if err := h.DB.First(&employee, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := h.DB.Delete(&employee).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete employee")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.DeleteEmployee(ctx, h.ES, h.Index, employee.ID); err != nil {
		logging.FromContext(c.Request().Context()).Error("es_delete_error", "error", err)
	}

	h.publish(c, map[string]interface{}{
		"type":       "employee_deleted",
		"employeeID": employee.ID,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("Employee with ID %d has been deleted", employee.ID),
	})
}
